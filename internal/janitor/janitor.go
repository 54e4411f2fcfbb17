// Package janitor runs the periodic background maintenance the rest of the
// pipeline's invariants depend on: sweeping expired auto-blocked IP rules
// and keeping the in-process route/policy cache from drifting too far from
// the durable store.
package janitor

import (
	"context"

	"github.com/R3E-Network/api-gateway/infrastructure/logging"
	"github.com/R3E-Network/api-gateway/internal/repository"
	"github.com/R3E-Network/api-gateway/internal/routing"
	"github.com/robfig/cron/v3"
)

// Janitor owns a cron scheduler running the gateway's maintenance jobs.
type Janitor struct {
	cron    *cron.Cron
	ipRules *repository.IPRuleStore
	router  *routing.Router
	log     *logging.Logger
}

func New(ipRules *repository.IPRuleStore, router *routing.Router, log *logging.Logger) *Janitor {
	return &Janitor{
		cron:    cron.New(),
		ipRules: ipRules,
		router:  router,
		log:     log,
	}
}

// Start registers the maintenance jobs on spec and begins running them in
// the background. It does not block.
func (j *Janitor) Start(spec string) error {
	if _, err := j.cron.AddFunc(spec, j.sweepExpiredBlocks); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc(spec, j.refreshRouteCache); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight job to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweepExpiredBlocks() {
	n, err := j.ipRules.DeleteExpiredAutoBlocks(context.Background())
	if err != nil {
		j.log.WithError(err).Warn("janitor: sweep expired auto-blocks")
		return
	}
	if n > 0 {
		j.log.WithField("count", n).Info("janitor: swept expired auto-blocks")
	}
}

func (j *Janitor) refreshRouteCache() {
	j.router.Invalidate()
}
