package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Failure is one reported stage failure.
type Failure struct {
	Stage   string    `json:"stage"`
	Kind    Kind      `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Message is what a Sender delivers.
type Message struct {
	Subject string
	Body    string
	Failure Failure
}

// Sender delivers an alert to operators.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Notifier implements the poller's failure reporter. Every report is written
// to the error log and then offered to each sender; sink failures are logged
// and dropped.
type Notifier struct {
	errLog  *zap.Logger
	senders []Sender
	prefix  string
	now     func() time.Time

	mu       sync.Mutex
	failures []Failure
}

// NewNotifier creates a Notifier. errLog may be nil to skip the file log.
func NewNotifier(errLog *zap.Logger, subjectPrefix string, senders ...Sender) *Notifier {
	if errLog == nil {
		errLog = zap.NewNop()
	}
	return &Notifier{
		errLog:  errLog,
		senders: senders,
		prefix:  subjectPrefix,
		now:     time.Now,
	}
}

// Report records err for stage. It never panics and never returns an error.
func (n *Notifier) Report(ctx context.Context, stage string, err error) {
	if err == nil {
		return
	}
	log := zap.L().With(zap.String("component", "notify"), zap.String("stage", stage))

	kind, code := classify(err)
	f := Failure{
		Stage:   stage,
		Kind:    kind,
		Code:    code,
		Message: err.Error(),
		At:      n.now(),
	}

	n.mu.Lock()
	n.failures = append(n.failures, f)
	n.mu.Unlock()

	n.errLog.Error("stage failed",
		zap.String("stage", f.Stage),
		zap.String("kind", string(f.Kind)),
		zap.String("code", f.Code),
		zap.String("error", f.Message),
	)
	if syncErr := n.errLog.Sync(); syncErr != nil {
		log.Warn("notify: sync error log", zap.Error(syncErr))
	}

	msg := Message{Subject: n.subject(f), Body: body(f), Failure: f}
	for _, s := range n.senders {
		if err := deliver(ctx, s, msg); err != nil {
			log.Error("notify: alert not delivered", zap.String("sender", s.Name()), zap.Error(err))
			continue
		}
		log.Info("notify: alert sent", zap.String("sender", s.Name()))
	}
}

// Failures returns a copy of the failures reported so far.
func (n *Notifier) Failures() []Failure {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Failure(nil), n.failures...)
}

func deliver(ctx context.Context, s Sender, msg Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sender panic: %v", p)
		}
	}()
	return s.Send(ctx, msg)
}

func (n *Notifier) subject(f Failure) string {
	what := "Exception"
	if f.Kind == KindDataStore {
		what = "Data Store Exception"
	}
	if n.prefix == "" {
		return fmt.Sprintf("%s in %s", what, f.Stage)
	}
	return fmt.Sprintf("%s %s in %s", n.prefix, what, f.Stage)
}

func body(f Failure) string {
	at := f.At.Format("2006-01-02 15:04:05 MST")
	if f.Kind == KindDataStore {
		code := f.Code
		if code == "" {
			code = "n/a"
		}
		return fmt.Sprintf("The data store reported the following exception in stage %s: code %s with the following explanation: %s at %s",
			f.Stage, code, f.Message, at)
	}
	return fmt.Sprintf("The hot calls poller threw the following exception in stage %s: %s at %s", f.Stage, f.Message, at)
}
