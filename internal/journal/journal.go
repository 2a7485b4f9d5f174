package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"tradebridge/internal/dispatch"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/registry"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultBuffer    = 1024
	defaultBatchSize = 100
	flushInterval    = time.Second
)

type Options struct {
	Buffer    int
	BatchSize int
}

// Journal persists command transitions and registry changes off the hot
// path. Record never blocks; when the buffer is full the record is dropped
// and counted.
type Journal struct {
	db        *gorm.DB
	log       *logger.Logger
	batchSize int

	commands  chan CommandRecord
	positions chan PositionRecord
	dropped   atomic.Int64
	started   atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// Open connects to postgres and migrates the journal tables.
func Open(dsn string, opts Options, log *logger.Logger) (*Journal, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConnectivity, "Не удалось подключиться к журналу", err)
	}
	j := New(db, opts, log)
	if err := j.Migrate(); err != nil {
		return nil, err
	}
	return j, nil
}

func New(db *gorm.DB, opts Options, log *logger.Logger) *Journal {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Journal{
		db:        db,
		log:       log,
		batchSize: opts.BatchSize,
		commands:  make(chan CommandRecord, opts.Buffer),
		positions: make(chan PositionRecord, opts.Buffer),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (j *Journal) logEntry() *logrus.Entry {
	return j.log.WithComponent("journal")
}

func (j *Journal) Migrate() error {
	if err := j.db.AutoMigrate(&CommandRecord{}, &PositionRecord{}); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "Не удалось подготовить таблицы журнала", err)
	}
	return nil
}

// Record implements dispatch.Journal.
func (j *Journal) Record(cmd dispatch.Command) {
	select {
	case <-j.closed:
		return
	default:
	}
	select {
	case j.commands <- commandRecord(cmd):
	default:
		j.drop()
	}
}

func (j *Journal) RecordPosition(ev registry.Event) {
	if ev.Type == registry.EventReset {
		return
	}
	select {
	case <-j.closed:
		return
	default:
	}
	select {
	case j.positions <- positionRecord(ev):
	default:
		j.drop()
	}
}

func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *Journal) drop() {
	if n := j.dropped.Add(1); n == 1 || n%100 == 0 {
		j.logEntry().WithField("dropped", n).Warn("Буфер журнала переполнен, записи отброшены.")
	}
}

// Run writes buffered records in batches until ctx is done or Close is
// called, then flushes what is left.
func (j *Journal) Run(ctx context.Context) error {
	j.started.Store(true)
	defer close(j.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var cmds []CommandRecord
	var poss []PositionRecord
	flush := func() {
		if len(cmds) > 0 {
			j.write(&cmds)
			cmds = cmds[:0]
		}
		if len(poss) > 0 {
			j.write(&poss)
			poss = poss[:0]
		}
	}

	for {
		select {
		case <-ctx.Done():
			j.stop()
			cmds, poss = j.drain(cmds, poss)
			flush()
			return ctx.Err()
		case <-j.closed:
			cmds, poss = j.drain(cmds, poss)
			flush()
			return nil
		case rec := <-j.commands:
			cmds = append(cmds, rec)
			if len(cmds) >= j.batchSize {
				flush()
			}
		case rec := <-j.positions:
			poss = append(poss, rec)
			if len(poss) >= j.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (j *Journal) drain(cmds []CommandRecord, poss []PositionRecord) ([]CommandRecord, []PositionRecord) {
	for {
		select {
		case rec := <-j.commands:
			cmds = append(cmds, rec)
		case rec := <-j.positions:
			poss = append(poss, rec)
		default:
			return cmds, poss
		}
	}
}

func (j *Journal) write(rows any) {
	if err := j.db.CreateInBatches(rows, j.batchSize).Error; err != nil {
		j.logEntry().WithError(err).Error("Не удалось записать журнал.")
	}
}

func (j *Journal) stop() {
	j.closeOnce.Do(func() { close(j.closed) })
}

// Close stops accepting records and waits for the writer to flush.
func (j *Journal) Close() error {
	j.stop()
	if j.started.Load() {
		<-j.done
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
