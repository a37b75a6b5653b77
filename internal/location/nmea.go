package location

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"

	"speedo/internal/units"
)

// NMEAConfig selects the serial device for a directly attached receiver.
// Device may be empty to auto-detect /dev/ttyACM* then /dev/ttyUSB*.
type NMEAConfig struct {
	Device string
	Baud   int
}

// NMEA reads RMC sentences from a serial GNSS receiver. RMC with validity A
// yields a fix with ground speed (knots converted to m/s); a void RMC yields
// a speedless fix so acquisition stays visible.
type NMEA struct {
	cfg NMEAConfig

	mu     sync.Mutex
	active bool
}

func NewNMEA(cfg NMEAConfig) *NMEA {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	return &NMEA{cfg: cfg}
}

var openSerialFn = openSerial

func (n *NMEA) Subscribe(opts Options, fn Handler) (Subscription, error) {
	opts = opts.withDefaults()

	n.mu.Lock()
	if n.active {
		n.mu.Unlock()
		return nil, errAlreadySubscribed
	}
	n.active = true
	n.mu.Unlock()

	release := func() {
		n.mu.Lock()
		n.active = false
		n.mu.Unlock()
	}

	device := strings.TrimSpace(n.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			release()
			return nil, fmt.Errorf("location: nmea auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}

	port, err := openSerialFn(device, n.cfg.Baud)
	if err != nil {
		release()
		return nil, fmt.Errorf("location: nmea open failed device=%s baud=%d: %w", device, n.cfg.Baud, err)
	}

	var closeOnce sync.Once
	sub := newSubscriber(opts, fn, func() {
		closeOnce.Do(func() { _ = port.Close() })
		release()
	})

	go func() {
		defer closeOnce.Do(func() { _ = port.Close() })
		log.Printf("location: nmea source device=%s baud=%d", device, n.cfg.Baud)
		readNMEA(port, sub)
	}()

	return sub, nil
}

func readNMEA(r io.Reader, sub *subscriber) {
	scanner := bufio.NewScanner(r)
	// NMEA sentences are < 82 chars; allow headroom for chatty receivers.
	scanner.Buffer(make([]byte, 0, 256), 4096)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}
		fix, ok := fixFromSentence(line)
		if !ok {
			continue
		}
		sub.deliver(fix)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("location: nmea read stopped: %v", err)
	}
}

// fixFromSentence returns ok=false for sentences other than RMC and for
// unparseable noise.
func fixFromSentence(line string) (Fix, bool) {
	sent, err := nmea.Parse(line)
	if err != nil {
		return Fix{}, false
	}
	if sent.DataType() != nmea.TypeRMC {
		return Fix{}, false
	}
	rmc := sent.(nmea.RMC)

	f := Fix{
		Time:   nowFn().UTC(),
		LatDeg: rmc.Latitude,
		LonDeg: rmc.Longitude,
	}
	if rmc.Validity == nmea.ValidRMC {
		v := units.MpsFromKnots(rmc.Speed)
		f.SpeedMPS = &v
		trk := rmc.Course
		f.TrackDeg = &trk
	}
	return f, true
}

func autoDetectDevice() string {
	candidates := make([]string, 0, 20)
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
