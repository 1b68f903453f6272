package moorsim

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	kitlog "github.com/go-kit/log"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/soniakeys/meeus/v3/julian"
)

// Sample is one committed solver step, as streamed to the exporter.
type Sample struct {
	Step         int
	Time         float64
	Position     Pose
	Velocity     [6]float64
	Acceleration [6]float64
	Tensions     []float64
}

// ExportConfig configures the exporting of the simulation.
type ExportConfig struct {
	Filename  string
	OutputDir string // Defaults to the output path of the environment configuration
	AsCSV     bool
	Influx    bool      // Write points to the InfluxDB server of the environment configuration
	Timestamp bool      // Append the creation time to the file name
	Epoch     time.Time // Wall clock time of t=0, defaults to the creation time
	Every     int       // Export one sample every so many steps
}

// IsUseless returns whether this config doesn't actually do anything.
func (c ExportConfig) IsUseless() bool {
	return !c.AsCSV && !c.Influx
}

// StreamHeader describes the streamed samples.
type StreamHeader struct {
	RunID    string
	Elements []string
}

// sampleSink receives the exported samples.
type sampleSink interface {
	write(s Sample) error
	close() error
}

// StreamSamples streams the output of the channel to the configured sinks until the channel is
// closed. A failing sink is dropped but the channel is always drained.
func StreamSamples(conf ExportConfig, header StreamHeader, samples <-chan Sample, logger kitlog.Logger) {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	logger = kitlog.With(logger, "subsys", "export", "run", header.RunID)
	epoch := conf.Epoch
	if epoch.IsZero() {
		epoch = time.Now().UTC()
	}
	var sinks []sampleSink
	if conf.AsCSV {
		if s, err := createCSVFile(conf, header, epoch); err != nil {
			logger.Log("level", "critical", "sink", "csv", "err", err)
		} else {
			logger.Log("level", "info", "sink", "csv", "file", s.f.Name())
			sinks = append(sinks, s)
		}
	}
	if conf.Influx {
		if s, err := newInfluxSink(header, epoch, logger); err != nil {
			logger.Log("level", "critical", "sink", "influx", "err", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	every := max(conf.Every, 1)
	written := 0
	for sample := range samples {
		if sample.Step%every != 0 {
			continue
		}
		for i, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.write(sample); err != nil {
				logger.Log("level", "critical", "step", sample.Step, "err", err)
				s.close()
				sinks[i] = nil
			}
		}
		written++
	}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := s.close(); err != nil {
			logger.Log("level", "warning", "err", err)
		}
	}
	logger.Log("level", "info", "samples", written)
}

// csvSink writes one row per sample.
type csvSink struct {
	f     *os.File
	w     *csv.Writer
	epoch time.Time
	row   []string
	last  float64
}

// createCSVFile returns a sink which must be closed.
func createCSVFile(conf ExportConfig, header StreamHeader, epoch time.Time) (*csvSink, error) {
	dir := conf.OutputDir
	if dir == "" {
		env, err := envConfig()
		if err != nil {
			return nil, err
		}
		dir = env.OutputDir
	}
	name := conf.Filename
	if name == "" {
		name = header.RunID
	}
	if conf.Timestamp {
		t := time.Now()
		name = fmt.Sprintf("%s-%d-%02d-%02dT%02d.%02d.%02d", name, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	}
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("motions-%s.csv", name)))
	if err != nil {
		return nil, err
	}
	// Header
	fmt.Fprintf(f, `# Creation date (UTC): %s
# Run: %s
#   Positions in m and rad, velocities in m/s and rad/s, accelerations in m/s^2 and rad/s^2
#   Element loads in N, jd is the Julian date of the sample
#   Simulation time start (UTC): %s
`, time.Now().UTC(), header.RunID, epoch.UTC())
	cols := []string{"time", "jd"}
	for _, quantity := range []string{"x", "v", "a"} {
		for _, dof := range dofNames {
			cols = append(cols, quantity+"_"+dof)
		}
	}
	for _, e := range header.Elements {
		cols = append(cols, "load_"+e)
	}
	s := &csvSink{f: f, w: csv.NewWriter(f), epoch: epoch, row: make([]string, len(cols))}
	if err := s.w.Write(cols); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *csvSink) write(sample Sample) error {
	s.row[0] = strconv.FormatFloat(sample.Time, 'f', 4, 64)
	s.row[1] = strconv.FormatFloat(julian.TimeToJD(s.epoch.Add(seconds(sample.Time))), 'f', 8, 64)
	c := 2
	for _, values := range [][6]float64{sample.Position, sample.Velocity, sample.Acceleration} {
		for _, v := range values {
			s.row[c] = strconv.FormatFloat(v, 'g', 10, 64)
			c++
		}
	}
	for _, v := range sample.Tensions {
		s.row[c] = strconv.FormatFloat(v, 'g', 10, 64)
		c++
	}
	s.last = sample.Time
	return s.w.Write(s.row)
}

func (s *csvSink) close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	fmt.Fprintf(s.f, "# Simulation time end (UTC): %s\n", s.epoch.Add(seconds(s.last)).UTC())
	return s.f.Close()
}

// influxSink writes one point per sample with the non-blocking write API.
type influxSink struct {
	client      influxdb2.Client
	writer      influxdb2_api.WriteAPI
	measurement string
	tags        map[string]string
	elements    []string
	epoch       time.Time
}

func newInfluxSink(header StreamHeader, epoch time.Time, logger kitlog.Logger) (*influxSink, error) {
	env, err := envConfig()
	if err != nil {
		return nil, err
	}
	if !env.Influx.Enabled {
		return nil, invalidf("influx export requested but influx.enabled is false")
	}
	client := influxdb2.NewClientWithOptions(env.Influx.URL, env.Influx.Token,
		influxdb2.DefaultOptions().SetBatchSize(env.Influx.BatchSize).SetFlushInterval(1000))
	s := &influxSink{
		client:      client,
		writer:      client.WriteAPI(env.Influx.Org, env.Influx.Bucket),
		measurement: env.Influx.Measurement,
		tags:        map[string]string{"run": header.RunID},
		elements:    header.Elements,
		epoch:       epoch,
	}
	errorsCh := s.writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			logger.Log("level", "warning", "sink", "influx", "bucket", env.Influx.Bucket, "err", writeErr)
		}
	}()
	logger.Log("level", "info", "sink", "influx", "url", env.Influx.URL, "bucket", env.Influx.Bucket)
	return s, nil
}

func (s *influxSink) write(sample Sample) error {
	fields := make(map[string]interface{}, 18+len(s.elements))
	for i, dof := range dofNames {
		fields[dof] = sample.Position[i]
		fields["v_"+dof] = sample.Velocity[i]
		fields["a_"+dof] = sample.Acceleration[i]
	}
	for i, e := range s.elements {
		fields["load_"+e] = sample.Tensions[i]
	}
	s.writer.WritePoint(influxdb2.NewPoint(s.measurement, s.tags, fields, s.epoch.Add(seconds(sample.Time))))
	return nil
}

func (s *influxSink) close() error {
	s.writer.Flush()
	s.client.Close()
	return nil
}

// seconds converts a simulation time to a duration.
func seconds(t float64) time.Duration {
	return time.Duration(t * float64(time.Second))
}
