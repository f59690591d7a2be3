package core

import (
	"context"

	"github.com/PaulFidika/entitlekit/entitlements"
	"github.com/sirupsen/logrus"
)

// EventLogger records entitlement transitions to an external sink.
// Implementations should be non-blocking and best-effort.
type EventLogger interface {
	LogTransition(ctx context.Context, source string, before *entitlements.Record, after entitlements.Record)
}

// LogrusEventLogger writes transitions as structured log lines.
type LogrusEventLogger struct {
	Log logrus.FieldLogger
}

func (l LogrusEventLogger) LogTransition(_ context.Context, source string, before *entitlements.Record, after entitlements.Record) {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	fields := logrus.Fields{
		"source":   source,
		"user_key": after.Key,
		"plan_id":  after.PlanID,
		"status":   after.Status,
		"state":    entitlements.StateOf(&after),
		"end_date": after.EndDate,
	}
	if before != nil {
		fields["prev_status"] = before.Status
		fields["prev_plan_id"] = before.PlanID
	}
	log.WithFields(fields).Info("entitlement updated")
}
