package display

import (
	"fmt"
	"image"
	"log"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// OLEDConfig selects the SSD1306 panel.
type OLEDConfig struct {
	// I2CAddr is the panel address. The ssd1306 driver only speaks to the
	// default 0x3C, so anything else is rejected up front.
	I2CAddr uint16
}

// OLED renders the display text on an SSD1306 panel over I2C.
type OLED struct {
	mu  sync.Mutex
	dev *ssd1306.Dev
	bus i2c.BusCloser
}

var hostInitOnce sync.Once
var hostInitErr error

func NewOLED(cfg OLEDConfig) (*OLED, error) {
	if cfg.I2CAddr == 0 {
		cfg.I2CAddr = 0x3C
	}
	if cfg.I2CAddr != 0x3C {
		return nil, fmt.Errorf("display: ssd1306 driver supports addr 0x3C only, got 0x%02X", cfg.I2CAddr)
	}

	hostInitOnce.Do(func() { _, hostInitErr = host.Init() })
	if hostInitErr != nil {
		return nil, fmt.Errorf("display: periph init failed: %w", hostInitErr)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("display: open i2c bus: %w", err)
	}

	opts := ssd1306.DefaultOpts
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("display: ssd1306 init at 0x%02X: %w", cfg.I2CAddr, err)
	}
	log.Printf("display: oled initialized addr=0x%02X", cfg.I2CAddr)
	return &OLED{dev: dev, bus: bus}, nil
}

func (o *OLED) SetText(text string) {
	if o == nil || o.dev == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	img := image1bit.NewVerticalLSB(o.dev.Bounds())
	drawer := font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(0, 30),
	}
	drawer.DrawString(text)

	if err := o.dev.Draw(o.dev.Bounds(), img, image.Point{}); err != nil {
		log.Printf("display: oled draw failed: %v", err)
	}
}

func (o *OLED) Close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dev != nil {
		_ = o.dev.Halt()
		o.dev = nil
	}
	if o.bus != nil {
		err := o.bus.Close()
		o.bus = nil
		return err
	}
	return nil
}
