package migrations

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// ApplierMetricsType provides access to the prometheus metric objects of the applier
type ApplierMetricsType struct {
	UnitCounter      *prometheus.CounterVec
	OperationCounter *prometheus.CounterVec
	FailureCounter   *prometheus.CounterVec
	UnitDuration     *prometheus.HistogramVec
}

const (
	instanceKey = "instance"
	serviceKey  = "service"
)

// failure classes used as the "class" label of the failure counter
const (
	classCycle         = "cycle"
	classIntegrity     = "integrity"
	classConfiguration = "configuration"
	classOther         = "other"
)

var (
	// largest bucket is 5 minutes, backfilling large tables takes a while
	durationMsBuckets = []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000, 300000}
	processName       = filepath.Base(os.Args[0])
	constLabels       = prometheus.Labels{
		serviceKey:  processName,
		instanceKey: getHostname(),
	}

	defUnitCounterOpts = prometheus.CounterOpts{
		Namespace:   "migrations",
		Subsystem:   "unit",
		Name:        "applied_total",
		Help:        "count of migration units that have been applied",
		ConstLabels: constLabels,
	}
	defOperationCounterOpts = prometheus.CounterOpts{
		Namespace:   "migrations",
		Subsystem:   "operation",
		Name:        "applied_total",
		Help:        "count of schema operations that have been applied",
		ConstLabels: constLabels,
	}
	defFailureCounterOpts = prometheus.CounterOpts{
		Namespace:   "migrations",
		Subsystem:   "unit",
		Name:        "failed_total",
		Help:        "count of migration runs that failed",
		ConstLabels: constLabels,
	}
	defUnitDurationOpts = prometheus.HistogramOpts{
		Namespace:   "migrations",
		Subsystem:   "unit",
		Name:        "duration_ms",
		Help:        "duration of applying a single unit in ms",
		Buckets:     durationMsBuckets,
		ConstLabels: constLabels,
	}

	// ApplierMetrics is the global metrics instance of the appliers of this process
	ApplierMetrics = ApplierMetricsType{
		UnitCounter:      promauto.NewCounterVec(defUnitCounterOpts, []string{"module"}),
		OperationCounter: promauto.NewCounterVec(defOperationCounterOpts, []string{"kind"}),
		FailureCounter:   promauto.NewCounterVec(defFailureCounterOpts, []string{"module", "class"}),
		UnitDuration:     promauto.NewHistogramVec(defUnitDurationOpts, []string{"module"}),
	}
)

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		logrus.Errorf("unable to retrieve hostname - setting to unknown")
		hostname = "unknown"
	}

	return hostname
}
