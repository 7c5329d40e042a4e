package transfer

// Level is the severity of a user-facing notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a message surfaced to the user after an action.
type Notice struct {
	Level   Level
	Message string
}

// Notifier receives notices. Front-ends render them as alerts or status lines.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discard struct{}

func (discard) Notify(Notice) {}
