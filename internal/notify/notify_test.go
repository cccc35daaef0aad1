package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider/cognitoidentityprovideriface"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/google/go-cmp/cmp"

	"example.com/scribe/internal/transcribe"
)

type fakeSes struct {
	sesiface.SESAPI

	sent []*ses.SendEmailInput
	err  error
	// failJob limits err to the message about that job when set.
	failJob string
}

func (f *fakeSes) SendEmailWithContext(_ aws.Context, in *ses.SendEmailInput, _ ...request.Option) (*ses.SendEmailOutput, error) {
	f.sent = append(f.sent, in)
	subject := aws.StringValue(in.Message.Subject.Data)
	if f.err != nil && (f.failJob == "" || strings.HasSuffix(subject, ": "+f.failJob)) {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("id")}, nil
}

type fakeCognito struct {
	cognitoidentityprovideriface.CognitoIdentityProviderAPI

	pages [][]*cognitoidentityprovider.UserType
	err   error
}

func (f *fakeCognito) ListUsersInGroupWithContext(_ aws.Context, in *cognitoidentityprovider.ListUsersInGroupInput, _ ...request.Option) (*cognitoidentityprovider.ListUsersInGroupOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := 0
	if in.NextToken != nil {
		page = int(aws.StringValue(in.NextToken)[0] - '0')
	}
	out := &cognitoidentityprovider.ListUsersInGroupOutput{Users: f.pages[page]}
	if page+1 < len(f.pages) {
		out.NextToken = aws.String(string(rune('0' + page + 1)))
	}
	return out, nil
}

func user(email string) *cognitoidentityprovider.UserType {
	return &cognitoidentityprovider.UserType{
		Username: aws.String(strings.Split(email, "@")[0]),
		Attributes: []*cognitoidentityprovider.AttributeType{
			{Name: aws.String("sub"), Value: aws.String("abc")},
			{Name: aws.String("email"), Value: aws.String(email)},
		},
	}
}

func TestGroupEmailsPaginates(t *testing.T) {
	svc := &fakeCognito{pages: [][]*cognitoidentityprovider.UserType{
		{user("ann@example.com"), {Username: aws.String("noemail")}},
		{user("bob@example.com")},
	}}
	got, err := GroupEmails(context.Background(), svc, "pool", "transcripts")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"ann@example.com", "bob@example.com"}, got); diff != "" {
		t.Errorf("emails mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupEmailsEmpty(t *testing.T) {
	svc := &fakeCognito{pages: [][]*cognitoidentityprovider.UserType{{}}}
	if _, err := GroupEmails(context.Background(), svc, "pool", "g"); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("err = %v, want ErrNoRecipients", err)
	}
}

func TestSendWrapsSesRejection(t *testing.T) {
	svc := &fakeSes{err: awserr.New(ses.ErrCodeMessageRejected, "address blacklisted", nil)}
	err := Send(context.Background(), svc, "scribe@example.com", []string{"ann@example.com"}, "s", "b")
	if err == nil || !strings.Contains(err.Error(), ses.ErrCodeMessageRejected) {
		t.Fatalf("err = %v", err)
	}
}

func TestBody(t *testing.T) {
	body := Body(transcribe.Notification{
		Job:           "PG_05-06-2024-Jane_Doe",
		Status:        "COMPLETED",
		Date:          "05-06-2024",
		Speaker:       "Jane D.",
		TranscriptURI: "https://example/t.json",
	})
	for _, want := range []string{"PG_05-06-2024-Jane_Doe", "COMPLETED", "Recorded: 05-06-2024", "Main speaker: Jane D.", "https://example/t.json"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "Reason") {
		t.Errorf("body has a reason for a successful job:\n%s", body)
	}
	if got := Subject(transcribe.Notification{Job: "x", Status: "FAILED"}); got != "Transcription failed: x" {
		t.Errorf("Subject = %q", got)
	}
}

func sqsEvent(bodies ...string) events.SQSEvent {
	var ev events.SQSEvent
	for i, b := range bodies {
		ev.Records = append(ev.Records, events.SQSMessage{MessageId: string(rune('a' + i)), Body: b})
	}
	return ev
}

func TestHandleRequest(t *testing.T) {
	mail := &fakeSes{}
	cognito := &fakeCognito{pages: [][]*cognitoidentityprovider.UserType{{user("ann@example.com")}}}
	h := NewHandler(cognito, mail, "pool", "transcripts", "scribe@example.com", nil)

	resp, err := h.HandleRequest(context.Background(), sqsEvent(
		`{"job":"PG_05-06-2024-Jane_Doe","status":"COMPLETED"}`,
		`not json`,
		`{}`,
	))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("batch item failures = %+v, want none", resp.BatchItemFailures)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mail.sent))
	}
	in := mail.sent[0]
	if got := aws.StringValue(in.Source); got != "scribe@example.com" {
		t.Errorf("source = %q", got)
	}
	if got := aws.StringValueSlice(in.Destination.ToAddresses); len(got) != 1 || got[0] != "ann@example.com" {
		t.Errorf("to = %v", got)
	}
	if got := aws.StringValue(in.Message.Subject.Data); got != "Transcript ready: PG_05-06-2024-Jane_Doe" {
		t.Errorf("subject = %q", got)
	}
}

func TestHandleRequestReportsFailedMessages(t *testing.T) {
	mail := &fakeSes{err: errors.New("throttled"), failJob: "b"}
	cognito := &fakeCognito{pages: [][]*cognitoidentityprovider.UserType{{user("ann@example.com")}}}
	h := NewHandler(cognito, mail, "pool", "g", "s@example.com", nil)

	resp, err := h.HandleRequest(context.Background(), sqsEvent(
		`{"job":"a","status":"COMPLETED"}`,
		`{"job":"b","status":"COMPLETED"}`,
		`{"job":"c","status":"COMPLETED"}`,
	))
	if err != nil {
		t.Fatal(err)
	}
	if len(mail.sent) != 3 {
		t.Errorf("attempted %d sends, want 3", len(mail.sent))
	}
	want := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{{ItemIdentifier: "b"}}}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleRequestRecipientError(t *testing.T) {
	h := NewHandler(&fakeCognito{err: errors.New("denied")}, &fakeSes{}, "pool", "g", "s@example.com", nil)
	if _, err := h.HandleRequest(context.Background(), sqsEvent(`{"job":"a"}`)); err == nil {
		t.Fatal("expected error")
	}
	if _, err := h.HandleRequest(context.Background(), events.SQSEvent{}); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}
