package journal

import (
	"time"
	"tradebridge/internal/dispatch"
	"tradebridge/internal/registry"
)

// CommandRecord is one status transition of a dispatcher command.
type CommandRecord struct {
	ID         uint   `gorm:"primaryKey"`
	CommandID  string `gorm:"size:64;index"`
	Type       string `gorm:"size:32"`
	Status     string `gorm:"size:16"`
	Retries    int
	Payload    string    `gorm:"type:text"`
	Reply      string    `gorm:"type:text"`
	Error      string    `gorm:"type:text"`
	RecordedAt time.Time `gorm:"index"`
}

// PositionRecord is one registry change of a terminal position.
type PositionRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Ticket     int64  `gorm:"index"`
	Event      string `gorm:"size:16"`
	StrategyID string `gorm:"size:64;index"`
	Symbol     string `gorm:"size:32"`
	Direction  string `gorm:"size:8"`
	Volume     float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
	Profit     float64
	OpenTime   time.Time
	RecordedAt time.Time `gorm:"index"`
}

func commandRecord(cmd dispatch.Command) CommandRecord {
	rec := CommandRecord{
		CommandID:  cmd.ID,
		Type:       string(cmd.Type),
		Status:     string(cmd.Status),
		Retries:    cmd.Retries,
		Payload:    string(cmd.Payload),
		Reply:      string(cmd.Reply.Data),
		RecordedAt: cmd.UpdatedAt,
	}
	if cmd.Err != nil {
		rec.Error = cmd.Err.Error()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	return rec
}

func positionRecord(ev registry.Event) PositionRecord {
	p := ev.Position
	return PositionRecord{
		Ticket:     p.Ticket,
		Event:      string(ev.Type),
		StrategyID: p.StrategyID,
		Symbol:     p.Symbol,
		Direction:  string(p.Direction),
		Volume:     p.Volume,
		OpenPrice:  p.OpenPrice,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Profit:     p.Profit,
		OpenTime:   p.OpenTime,
		RecordedAt: ev.Time,
	}
}
