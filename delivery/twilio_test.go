package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTwilioSendPostsMessageForm(t *testing.T) {
	var got struct {
		path string
		auth string
		form map[string]string
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		user, pass, _ := r.BasicAuth()
		got.auth = user + ":" + pass
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got.form = map[string]string{
			"To":   r.PostFormValue("To"),
			"From": r.PostFormValue("From"),
			"Body": r.PostFormValue("Body"),
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123"}`))
	}))
	defer server.Close()

	sender, err := NewTwilioSMSSender(TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+15550000000",
		BaseURL:    server.URL,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := sender.Send(context.Background(), "+15551112222", "123456 is your verification code."); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got.path != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("unexpected path %q", got.path)
	}
	if got.auth != "AC123:secret" {
		t.Fatalf("unexpected basic auth %q", got.auth)
	}
	if got.form["To"] != "+15551112222" || got.form["From"] != "+15550000000" {
		t.Fatalf("unexpected numbers: %+v", got.form)
	}
	if !strings.Contains(got.form["Body"], "123456") {
		t.Fatalf("code missing from body: %q", got.form["Body"])
	}
}

func TestTwilioSendSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code": 20003, "message": "Authenticate"}`))
	}))
	defer server.Close()

	sender, err := NewTwilioSMSSender(TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "wrong",
		From:       "+15550000000",
		BaseURL:    server.URL,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = sender.Send(context.Background(), "+15551112222", "hi")
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("error should carry the status: %v", err)
	}
}

func TestTwilioConfigValidation(t *testing.T) {
	if _, err := NewTwilioSMSSender(TwilioConfig{From: "+1555"}); err == nil {
		t.Fatal("missing credentials must fail")
	}
	if _, err := NewTwilioSMSSender(TwilioConfig{AccountSID: "AC", AuthToken: "tok"}); err == nil {
		t.Fatal("missing from number must fail")
	}
}

func TestSMTPConfigValidation(t *testing.T) {
	if _, err := NewSMTPEmailSender(SMTPConfig{Port: 587}); err == nil {
		t.Fatal("missing host must fail")
	}
	if _, err := NewSMTPEmailSender(SMTPConfig{Host: "smtp.example.com"}); err == nil {
		t.Fatal("missing port must fail")
	}
	if _, err := NewSMTPEmailSender(SMTPConfig{Host: "smtp.example.com", Port: 587}); err == nil {
		t.Fatal("missing from/username must fail")
	}

	sender, err := NewSMTPEmailSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "mailer@example.com", Password: "p"})
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if sender.config.From != "mailer@example.com" {
		t.Fatalf("expected from fallback to username, got %q", sender.config.From)
	}
}

func TestSMTPSendHonorsCancelledContext(t *testing.T) {
	sender, err := NewSMTPEmailSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sender.Send(ctx, "to@example.com", "subject", "body"); err == nil {
		t.Fatal("cancelled context must abort the send")
	}
}
