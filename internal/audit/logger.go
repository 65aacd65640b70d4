package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	Timestamp   time.Time       `json:"timestamp"`
	EventType   string          `json:"event_type"`
	Transaction string          `json:"transaction_uid"`
	Customer    string          `json:"customer_uid"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Details     any             `json:"details,omitempty"`
}

// Logger emits one structured line per ledger decision so a complete
// movement history can be reconstructed from the process log alone.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) LogMovement(txUID, customerUID, txType string, amount decimal.Decimal, status string) {
	l.log(Event{
		Timestamp:   time.Now(),
		EventType:   txType,
		Transaction: txUID,
		Customer:    customerUID,
		Amount:      amount,
		Status:      status,
	})
}

func (l *Logger) LogReplay(txUID, customerUID string, status string) {
	l.log(Event{
		Timestamp:   time.Now(),
		EventType:   "IDEMPOTENT_REPLAY",
		Transaction: txUID,
		Customer:    customerUID,
		Status:      status,
	})
}

func (l *Logger) LogRejection(txUID, customerUID string, err error) {
	l.log(Event{
		Timestamp:   time.Now(),
		EventType:   "REJECTED",
		Transaction: txUID,
		Customer:    customerUID,
		Status:      "FAILED",
		Details:     map[string]string{"error": err.Error()},
	})
}

func (l *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
