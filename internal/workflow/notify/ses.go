package notify

import (
	"context"
	"fmt"
	"strings"

	"permit-workers/internal/common/aws"
)

// SESMailer e-mails operations staff about inspections that could not be
// assigned an inspector. Other events are ignored.
type SESMailer struct {
	client *aws.SESClient
	from   string
	to     []string
}

func NewSESMailer(client *aws.SESClient, from string, to ...string) *SESMailer {
	return &SESMailer{client: client, from: from, to: to}
}

func (m *SESMailer) Publish(ctx context.Context, event Event) error {
	if event.Type != EventInspectionPending {
		return nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "No inspector was available for a %s inspection.\n\n", event.InspectionType)
	fmt.Fprintf(&body, "Application: %s\n", event.ApplicationID)
	fmt.Fprintf(&body, "Schedule:    %s\n", event.ScheduleID)
	fmt.Fprintf(&body, "Date:        %s\n", event.ScheduledDate)
	body.WriteString("\nThe booking stays pending until an inspector is assigned.\n")

	subject := fmt.Sprintf("Pending %s inspection for application %s", event.InspectionType, event.ApplicationID)
	if _, err := m.client.SendText(ctx, m.from, m.to, subject, body.String()); err != nil {
		return fmt.Errorf("ses send %s: %w", event.Type, err)
	}
	return nil
}
