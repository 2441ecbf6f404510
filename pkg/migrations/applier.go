package migrations

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	cerrors "github.com/contiamo/schema-migrator/pkg/errors"
	"github.com/contiamo/schema-migrator/pkg/schema"
	"github.com/contiamo/schema-migrator/pkg/state"
	"github.com/contiamo/schema-migrator/pkg/tracing"
)

// Options configures an Applier
type Options struct {
	// StrictDependencies rejects prerequisites that are neither part of the unit
	// set nor in the applied record. By default they are logged and treated as
	// satisfied.
	StrictDependencies bool
	// LockTimeout limits how long a run waits for the store lock held by
	// another run, 0 waits until the context is done. The units themselves
	// are not limited by it.
	LockTimeout time.Duration
}

// Report lists what a run did
type Report struct {
	// Applied are the units applied by the run in apply order
	Applied []schema.UnitID
	// Skipped are the units that were already in the applied record
	Skipped []schema.UnitID
}

// Applier applies unit sets to a state.Store
type Applier struct {
	tracing.Tracer
	store   state.Store
	options Options
}

// NewApplier creates an applier for the given store
func NewApplier(store state.Store, options Options) *Applier {
	return &Applier{
		Tracer:  tracing.NewTracer("migrations", "Applier"),
		store:   store,
		options: options,
	}
}

// Apply validates the units, orders them by their prerequisites and applies
// every unit that is not in the applied record yet.
//
// Definition errors return a ConfigurationError and cycles a CycleError,
// in both cases nothing is applied. An operation that conflicts with existing
// data returns an IntegrityError, the units applied before it stay applied.
func (a *Applier) Apply(ctx context.Context, units []*schema.Unit) (report Report, err error) {
	span, ctx := a.StartSpan(ctx, "Apply")
	defer func() {
		a.FinishSpan(span, err)
	}()

	plan, err := a.prepare(ctx, units)
	if err != nil {
		return report, a.failed("", err)
	}

	return a.run(ctx, plan)
}

// ApplyTarget is like Apply but only applies target and its transitive
// prerequisites
func (a *Applier) ApplyTarget(ctx context.Context, units []*schema.Unit, target schema.UnitID) (report Report, err error) {
	span, ctx := a.StartSpan(ctx, "ApplyTarget")
	defer func() {
		a.FinishSpan(span, err)
	}()
	span.SetTag("migration.target", target.String())

	if _, err = a.prepare(ctx, units); err != nil {
		return report, a.failed("", err)
	}

	plan, err := schema.Closure(units, target)
	if err != nil {
		return report, a.failed(target.Module, err)
	}

	return a.run(ctx, plan)
}

// Plan returns the units Apply would apply, in apply order
func (a *Applier) Plan(ctx context.Context, units []*schema.Unit) (pending []*schema.Unit, err error) {
	span, ctx := a.StartSpan(ctx, "Plan")
	defer func() {
		a.FinishSpan(span, err)
	}()

	plan, err := a.prepare(ctx, units)
	if err != nil {
		return nil, err
	}

	records, err := a.store.Applied(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "can not read the applied record")
	}
	applied := state.AppliedSet(records)

	pending = []*schema.Unit{}
	for _, u := range plan {
		if _, ok := applied[u.ID]; !ok {
			pending = append(pending, u)
		}
	}
	return pending, nil
}

// prepare validates the unit set and returns it in apply order
func (a *Applier) prepare(ctx context.Context, units []*schema.Unit) ([]*schema.Unit, error) {
	for _, u := range units {
		if u == nil {
			return nil, cerrors.NewConfigurationError("", errors.New("unit set contains a nil unit"))
		}
		if err := u.Validate(); err != nil {
			return nil, cerrors.NewConfigurationError(u.ID.String(), err)
		}
	}

	plan, err := schema.Sort(units)
	if err != nil {
		return nil, err
	}

	checkPrimaryKeyReferences(ctx, plan)
	return plan, nil
}

func (a *Applier) run(ctx context.Context, plan []*schema.Unit) (report Report, err error) {
	logger := logrus.WithContext(ctx).WithField("method", "run")

	unlock, err := a.lock(ctx)
	if err != nil {
		return report, errors.Wrap(err, "can not lock the schema state")
	}
	defer func() {
		unlockErr := unlock()
		if unlockErr != nil {
			logger.WithError(unlockErr).Error("can not release the schema state lock")
			if err == nil {
				err = errors.Wrap(unlockErr, "can not release the schema state lock")
			}
		}
	}()

	records, err := a.store.Applied(ctx)
	if err != nil {
		return report, errors.Wrap(err, "can not read the applied record")
	}
	applied := state.AppliedSet(records)

	if err = a.checkExternal(ctx, plan, applied); err != nil {
		return report, a.failed("", err)
	}

	report = Report{Applied: []schema.UnitID{}, Skipped: []schema.UnitID{}}
	for _, u := range plan {
		if record, ok := applied[u.ID]; ok {
			if record.Checksum != u.Checksum() {
				logger.WithField("unit", u.ID.String()).
					WithField("recorded", record.Checksum).
					WithField("defined", u.Checksum()).
					Warn("applied unit was modified after it was applied, it is not applied again")
			}
			report.Skipped = append(report.Skipped, u.ID)
			continue
		}

		err = a.applyUnit(ctx, u)
		if err != nil {
			return report, a.failed(u.ID.Module, err)
		}
		report.Applied = append(report.Applied, u.ID)
	}

	logger.WithField("applied", len(report.Applied)).
		WithField("skipped", len(report.Skipped)).
		Info("migration finished")
	return report, nil
}

// lock acquires the store lock within the lock timeout
func (a *Applier) lock(ctx context.Context) (unlock func() error, err error) {
	lockCtx := ctx
	if a.options.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, a.options.LockTimeout)
		defer cancel()
	}
	return a.store.Lock(lockCtx)
}

// checkExternal handles prerequisites that are not part of the unit set
func (a *Applier) checkExternal(ctx context.Context, units []*schema.Unit, applied map[schema.UnitID]state.Record) error {
	for _, dep := range schema.External(units) {
		if _, ok := applied[dep]; ok {
			continue
		}
		if a.options.StrictDependencies {
			return cerrors.NewConfigurationError(dep.String(), errors.New("prerequisite is neither defined nor applied"))
		}
		logrus.WithContext(ctx).
			WithField("prerequisite", dep.String()).
			Warn("prerequisite is neither defined nor applied, it is treated as satisfied")
	}
	return nil
}

func (a *Applier) applyUnit(ctx context.Context, u *schema.Unit) (err error) {
	span, ctx := a.StartSpan(ctx, "applyUnit")
	defer func() {
		a.FinishSpan(span, err)
	}()
	span.SetTag("migration.unit", u.ID.String())

	logger := logrus.WithContext(ctx).
		WithField("method", "applyUnit").
		WithField("unit", u.ID.String())
	logger.Debug("unit started")

	start := time.Now()
	tx, err := a.store.Begin(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to start unit transaction")
		return errors.Wrap(err, "failed to start unit transaction")
	}

	defer func() {
		if err == nil {
			err = tx.Commit()
			if err != nil {
				logger.WithError(err).Error("can not commit unit transaction")
				err = errors.Wrapf(err, "can not commit %s", u.ID)
			}
			return
		}

		logger.WithError(err).Error("unit transaction requires rollback")

		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			err = errors.Wrap(err, rollbackErr.Error())
			logger.WithError(err).Error("unit rollback failed")
		}
	}()

	for i, op := range u.Operations {
		err = tx.Apply(ctx, u.ID, op)
		if err != nil {
			logger.WithError(err).WithField("operation", i).Error("operation failed")
			return errors.Wrapf(err, "%s failed at operation %d", u.ID, i)
		}
		ApplierMetrics.OperationCounter.WithLabelValues(string(op.Kind())).Inc()
	}

	err = tx.Record(ctx, u)
	if err != nil {
		logger.WithError(err).Error("can not record unit")
		return errors.Wrapf(err, "can not record %s", u.ID)
	}

	ApplierMetrics.UnitCounter.WithLabelValues(u.ID.Module).Inc()
	ApplierMetrics.UnitDuration.WithLabelValues(u.ID.Module).Observe(float64(time.Since(start).Milliseconds()))

	logger.WithField("affected", len(u.Operations)).Info("unit finished")
	return nil
}

// failed counts the failure of a run and returns err unchanged
func (a *Applier) failed(module string, err error) error {
	class := classOther
	switch {
	case errors.Is(err, cerrors.ErrCycle):
		class = classCycle
	case errors.Is(err, cerrors.ErrIntegrity):
		class = classIntegrity
	case errors.Is(err, cerrors.ErrConfiguration):
		class = classConfiguration
	}
	ApplierMetrics.FailureCounter.WithLabelValues(module, class).Inc()
	return err
}
