package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender submits SMS messages through the Twilio REST API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender creates a sender using the given account credentials and
// originating phone number.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: from}
}

// SendSMS implements Sender. Only the synchronous submission acknowledgment
// is awaited; delivery itself is not confirmed.
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) (string, error) {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("SendSMS to %s: %w", to, err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	return sid, nil
}

// Ensure TwilioSender implements the Sender interface.
var _ Sender = (*TwilioSender)(nil)

// SendHandler builds the queue Handler that submits jobs through sender and
// logs each outcome. This is the dispatch pipeline's only error sink.
func SendHandler(sender Sender, log zerolog.Logger) Handler {
	return func(ctx context.Context, job *SummaryJob) error {
		sid, err := sender.SendSMS(ctx, job.PhoneNumber, job.Body)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", job.JobID).
				Str("phone_number", job.PhoneNumber).
				Msg("Summary dispatch failed")
			return err
		}

		log.Info().
			Str("job_id", job.JobID).
			Str("phone_number", job.PhoneNumber).
			Str("message_sid", sid).
			Msg("Summary dispatched")
		return nil
	}
}
