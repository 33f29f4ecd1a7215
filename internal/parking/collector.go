package parking

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes a point-in-time view of the lot to Prometheus.
type Collector struct {
	lot *ParkingLot

	totalSlots    *prometheus.Desc
	occupiedSlots *prometheus.Desc
	queueLength   *prometheus.Desc
	undoDepth     *prometheus.Desc
	redoDepth     *prometheus.Desc
}

func NewCollector(lot *ParkingLot) *Collector {
	return &Collector{
		lot:           lot,
		totalSlots:    prometheus.NewDesc("parking_slots_total", "Number of parking slots.", nil, nil),
		occupiedSlots: prometheus.NewDesc("parking_slots_occupied", "Number of occupied parking slots.", nil, nil),
		queueLength:   prometheus.NewDesc("parking_wait_queue_length", "Plates waiting for a free slot.", nil, nil),
		undoDepth:     prometheus.NewDesc("parking_undo_depth", "Actions available to undo.", nil, nil),
		redoDepth:     prometheus.NewDesc("parking_redo_depth", "Actions available to redo.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalSlots
	ch <- c.occupiedSlots
	ch <- c.queueLength
	ch <- c.undoDepth
	ch <- c.redoDepth
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	status := c.lot.GetStatus()
	ch <- prometheus.MustNewConstMetric(c.totalSlots, prometheus.GaugeValue, float64(status.Capacity))
	ch <- prometheus.MustNewConstMetric(c.occupiedSlots, prometheus.GaugeValue, float64(status.Occupied))
	ch <- prometheus.MustNewConstMetric(c.queueLength, prometheus.GaugeValue, float64(len(status.Queue)))
	ch <- prometheus.MustNewConstMetric(c.undoDepth, prometheus.GaugeValue, float64(len(status.Undo)))
	ch <- prometheus.MustNewConstMetric(c.redoDepth, prometheus.GaugeValue, float64(len(status.Redo)))
}
