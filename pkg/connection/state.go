package connection

import "fmt"

// State - состояние подключения
type State int

const (
	// StateDisconnected - подключения нет (возможно, запланирован reconnect)
	StateDisconnected State = iota

	// StateConnecting - идет явный Connect
	StateConnecting

	// StateConnected - подключение живо, работает ping loop
	StateConnected

	// StateReconnecting - сработал таймер reconnect loop, идет попытка подключения
	StateReconnecting

	// StateClosed - терминальное состояние после Close
	StateClosed
)

// String - строковое представление состояния
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}
