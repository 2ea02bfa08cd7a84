package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"imagehive/internal/queue"
)

// Scheduler enqueues the periodic orphan sweep so a worker eventually
// removes source uploads whose jobs never completed.
type Scheduler struct {
	cron     *cron.Cron
	producer *queue.Producer
	schedule string
	log      zerolog.Logger
}

func NewScheduler(producer *queue.Producer, schedule string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		producer: producer,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.enqueueSweep); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() context.CancelFunc {
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		s.cron.Stop()
		cancel()
	}()
	return cancel
}

func (s *Scheduler) enqueueSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.producer.EnqueueSweep(ctx); err != nil {
		s.log.Error().Err(err).Msg("enqueue sweep failed")
	}
}
