/*
notify.go - Outbound notification port

PURPOSE:
  The service announces lifecycle events (applied, decided) through this
  narrow interface. Delivery is best-effort: a notifier must never return
  an error into the request path, so the interface has no error returns
  and implementations swallow their own failures.

  The default LogNotifier just writes structured log lines; a mail or
  chat integration plugs in behind the same interface.
*/
package leave

import "go.uber.org/zap"

// Notifier receives request lifecycle events after they are committed.
type Notifier interface {
	LeaveApplied(req *Request)
	LeaveDecided(req *Request)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) LeaveApplied(*Request) {}
func (NopNotifier) LeaveDecided(*Request) {}

// LogNotifier records events as structured log lines.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) LeaveApplied(req *Request) {
	n.Log.Info("leave applied",
		zap.String("request_id", req.ID),
		zap.String("applicant_id", req.ApplicantID),
		zap.String("approver_id", req.ApproverID),
		zap.String("type", string(req.Type)),
		zap.String("start_date", req.StartDate.String()))
}

func (n LogNotifier) LeaveDecided(req *Request) {
	n.Log.Info("leave decided",
		zap.String("request_id", req.ID),
		zap.String("applicant_id", req.ApplicantID),
		zap.String("status", string(req.Status)))
}
