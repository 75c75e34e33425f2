package nn

import "github.com/cyclopcam/logs"

// DefaultLog returns log, or a stdout logger if log is nil
func DefaultLog(log logs.Log) logs.Log {
	if log != nil {
		return log
	}
	l, _ := logs.NewLog()
	return l
}
