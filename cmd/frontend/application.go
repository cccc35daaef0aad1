package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/gorilla/mux"
	"github.com/urfave/negroni"

	"example.com/scribe/internal/cloud"
	"example.com/scribe/internal/config"
	"example.com/scribe/pkg/logger"
)

type storage interface {
	cloud.S3Presign
	cloud.S3ListObjects
}

type application struct {
	s3            storage
	projectBucket string
	outputBucket  string
	log           *logger.Logger
}

func main() {
	var cfg config.Frontend
	config.MustLoad(&cfg)

	log := logger.Must(cfg.Log).Named("frontend")
	defer log.Sync()

	sess := session.Must(session.NewSession(&aws.Config{Region: aws.String(cfg.Region)}))
	app := &application{
		s3:            s3.New(sess),
		projectBucket: cfg.ProjectBucket,
		outputBucket:  cfg.OutputBucket,
		log:           log,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, app, cfg.Port); err != nil {
		log.Error("frontend stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, app *application, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           app.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()
	app.log.Info("frontend started", logger.String("address", srv.Addr))

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		app.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (app *application) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ping", app.ping).Methods(http.MethodGet)
	r.HandleFunc("/transcripts", app.listTranscripts).Methods(http.MethodGet)
	r.HandleFunc("/transcripts/{job}", app.getTranscriptURI).Methods(http.MethodGet)
	r.HandleFunc("/upload/{name}", app.getUploadURI).Methods(http.MethodGet)

	n := negroni.New(negroni.NewRecovery(), negroni.HandlerFunc(app.logRequest))
	n.UseHandler(r)
	return n
}

func (app *application) logRequest(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()
	next(rw, r)
	status := 0
	if res, ok := rw.(negroni.ResponseWriter); ok {
		status = res.Status()
	}
	app.log.Info("request",
		logger.String("method", r.Method),
		logger.String("path", r.URL.Path),
		logger.Int("status", status),
		logger.Any("duration", time.Since(start)))
}

func (app *application) ping(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, "pong")
}

func (app *application) listTranscripts(w http.ResponseWriter, r *http.Request) {
	transcripts, err := cloud.ListTranscripts(r.Context(), app.s3, app.outputBucket)
	if err != nil {
		app.log.Error("cannot list transcripts", logger.Error(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeResponse(w, http.StatusOK, transcripts)
}

func (app *application) getTranscriptURI(w http.ResponseWriter, r *http.Request) {
	job := mux.Vars(r)["job"]
	uri, err := cloud.MakeSignedURI(app.s3, cloud.TranscriptLocation(app.outputBucket, job))
	if err != nil {
		app.log.Error("cannot sign transcript url", logger.String("job", job), logger.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeResponse(w, http.StatusOK, uri)
}

func (app *application) getUploadURI(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	loc := cloud.UploadLocation(app.projectBucket, name)
	uri, err := cloud.MakeSignedPutURI(app.s3, loc)
	if err != nil {
		app.log.Error("cannot sign upload url", logger.String("key", loc.Key), logger.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeResponse(w, http.StatusOK, uri)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeResponse(w, status, errorBody{Error: err.Error()})
}
