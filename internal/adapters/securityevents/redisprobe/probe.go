package redisprobe

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/platform/logger"
)

const keyPrefix = "authz:xtenant:"

type Options struct {
	// Threshold: cantidad de cruces de tenant por ventana a partir de la cual se
	// sospecha un sondeo.
	Threshold int64
	Window    time.Duration
	// Timeout de cada escritura a redis; la decisión ya fue tomada, no se espera más.
	Timeout time.Duration
}

// Probe cuenta decisiones cross-tenant por actor en una ventana fija de redis.
// Al pasar el umbral registra una alerta; nunca cambia la decisión.
type Probe struct {
	rdb  redis.Cmdable
	log  logger.Logger
	opts Options
}

var _ authz.Observer = (*Probe)(nil)

func New(rdb redis.Cmdable, log logger.Logger, opts Options) *Probe {
	if opts.Threshold <= 0 {
		opts.Threshold = 5
	}
	if opts.Window <= 0 {
		opts.Window = 10 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 200 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Probe{
		rdb:  rdb,
		log:  log.With(map[string]any{"component": "redisprobe"}),
		opts: opts,
	}
}

func (p *Probe) ObserveDecision(ctx context.Context, ev authz.DecisionEvent) {
	if ev.Err != nil || ev.Decision.Reason != authz.ReasonCrossTenant || ev.Actor.ID == "" {
		return
	}

	// el request puede cancelarse apenas se responde
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.Timeout)
	defer cancel()

	n, err := p.record(ctx, ev.Actor.ID)
	if err != nil {
		p.log.Warn("cross-tenant counter unavailable", map[string]any{
			"actor_id": ev.Actor.ID,
			"error":    err.Error(),
		})
		return
	}

	// una alerta por ventana: solo al cruzar el umbral
	if n == p.opts.Threshold+1 {
		p.log.Error("cross-tenant probing suspected", map[string]any{
			"security_event": "cross_tenant_probe",
			"actor_id":       ev.Actor.ID,
			"tenant_id":      ev.Actor.TenantID,
			"resource":       string(ev.Resource),
			"count":          n,
			"window_seconds": int64(p.opts.Window / time.Second),
		})
	}
}

func (p *Probe) record(ctx context.Context, actorID string) (int64, error) {
	key := keyPrefix + actorID
	pipe := p.rdb.TxPipeline()
	// SET NX abre la ventana; INCR conserva el TTL
	pipe.SetNX(ctx, key, 0, p.opts.Window)
	incr := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Count devuelve los cruces registrados para actorID en la ventana actual.
func (p *Probe) Count(ctx context.Context, actorID string) (int64, error) {
	v, err := p.rdb.Get(ctx, keyPrefix+actorID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}
