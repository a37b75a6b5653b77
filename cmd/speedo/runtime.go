package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"speedo/internal/button"
	"speedo/internal/config"
	"speedo/internal/display"
	"speedo/internal/location"
	"speedo/internal/notify"
	"speedo/internal/permission"
	"speedo/internal/session"
	"speedo/internal/share"
	"speedo/internal/web"
)

// runtime owns the wired-up service: source, gate, sinks, controller and the
// optional web/button surfaces.
type runtime struct {
	cfg config.Config

	board   *notify.Board
	bcast   *display.Broadcaster
	oled    *display.OLED
	mqtt    *share.MQTT
	chooser *share.Chooser
	broker  *permission.Broker
	ctrl    *session.Controller
	btn     *button.Service
	httpSrv *http.Server
}

func newRuntime(cfg config.Config) (*runtime, error) {
	rt := &runtime{
		cfg:   cfg,
		board: notify.NewBoard(50),
	}

	src, err := buildSource(cfg.Location)
	if err != nil {
		return nil, err
	}

	gate, broker := buildGate(cfg.Permission)
	rt.broker = broker

	sink := rt.buildDisplay(cfg.Display)

	chooser, err := rt.buildChooser(cfg.Share)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.chooser = chooser

	rt.ctrl = session.New(session.Config{
		AppName: cfg.AppName,
		Options: buildOptions(cfg.Location),
	}, src, gate, sink, chooser, rt.board)

	rt.btn = button.New(button.Config{
		Enable:   cfg.Button.Enable,
		Pin:      cfg.Button.Pin,
		Debounce: time.Duration(cfg.Button.Debounce),
	}, rt.toggle)

	if cfg.Web.Enable {
		st := web.NewStatus()
		st.SetStatic(cfg.AppName, cfg.Location.Source, chooser.Targets())
		rt.httpSrv = &http.Server{
			Addr: cfg.Web.Addr,
			Handler: web.Handler(web.Deps{
				Status:  st,
				Ctrl:    rt.ctrl,
				Board:   rt.board,
				Stream:  web.NewSpeedStream(rt.bcast),
				Broker:  broker,
				Targets: chooser.Targets(),
			}),
		}
	}

	return rt, nil
}

func buildOptions(lc config.LocationConfig) location.Options {
	acc := location.AccuracyHighest
	if lc.Accuracy == "balanced" {
		acc = location.AccuracyBalanced
	}
	return location.Options{
		Accuracy:    acc,
		Interval:    time.Duration(lc.Interval),
		MinInterval: time.Duration(lc.MinInterval),
		WaitForFix:  lc.WaitForFix,
	}
}

func buildSource(lc config.LocationConfig) (location.Source, error) {
	switch lc.Source {
	case "nmea":
		return location.NewNMEA(location.NMEAConfig{
			Device: lc.NMEA.Device,
			Baud:   lc.NMEA.Baud,
		}), nil
	case "gpsd":
		return location.NewGPSD(location.GPSDConfig{Addr: lc.GPSD.Addr}), nil
	case "sim":
		return location.NewSim(location.SimConfig{
			CruiseKmh:   lc.Sim.CruiseKmh,
			WarmupFixes: lc.Sim.WarmupFixes,
		}), nil
	default:
		return nil, fmt.Errorf("unknown location source %q", lc.Source)
	}
}

func buildGate(pc config.PermissionConfig) (permission.Gate, *permission.Broker) {
	switch pc.Mode {
	case "granted":
		return permission.StaticGate{Allow: true}, nil
	case "denied":
		return permission.StaticGate{Allow: false}, nil
	default:
		b := permission.NewBroker()
		return b, b
	}
}

func (rt *runtime) buildDisplay(dc config.DisplayConfig) display.Sink {
	rt.bcast = display.NewBroadcaster()
	sinks := display.Multi{rt.bcast}
	if dc.Console {
		sinks = append(sinks, display.Console{})
	}
	if dc.OLED.Enable {
		oled, err := display.NewOLED(display.OLEDConfig{I2CAddr: dc.OLED.I2CAddr})
		if err != nil {
			// The panel is an accessory; run headless rather than die.
			log.Printf("display: oled disabled: %v", err)
		} else {
			rt.oled = oled
			sinks = append(sinks, oled)
		}
	}
	return sinks
}

func (rt *runtime) buildChooser(sc config.ShareConfig) (*share.Chooser, error) {
	chooser := share.NewChooser(sc.Default)
	if sc.MQTT.Enable {
		m, err := share.NewMQTT(share.MQTTConfig{
			Broker:   sc.MQTT.Broker,
			Topic:    sc.MQTT.Topic,
			ClientID: sc.MQTT.ClientID,
		})
		if err != nil {
			return nil, err
		}
		rt.mqtt = m
		if err := chooser.Register(m); err != nil {
			return nil, err
		}
	}
	if sc.File.Enable {
		f, err := share.NewFile(sc.File.Path)
		if err != nil {
			return nil, err
		}
		if err := chooser.Register(f); err != nil {
			return nil, err
		}
	}
	return chooser, nil
}

// toggle flips the session on a button press.
func (rt *runtime) toggle() {
	if rt.ctrl.Snapshot().State == "active" {
		rt.ctrl.Stop()
		return
	}
	if err := rt.ctrl.Start(context.Background()); err != nil {
		log.Printf("button: start failed: %v", err)
	}
}

// Run blocks until ctx is done or the web server fails.
func (rt *runtime) Run(ctx context.Context, autostart bool) error {
	if err := rt.btn.Start(); err != nil && rt.cfg.Button.Enable {
		// Missing GPIO downgrades to web/API control only.
		log.Printf("button: running without hardware control")
	}

	if autostart {
		if err := rt.ctrl.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	if rt.httpSrv != nil {
		go func() {
			log.Printf("web: listening addr=%s", rt.httpSrv.Addr)
			if err := rt.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	if rt.httpSrv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = rt.httpSrv.Shutdown(shutCtx)
		cancel()
		rt.httpSrv = nil
	}
	if rt.btn != nil {
		rt.btn.Close()
	}
	if rt.ctrl != nil {
		rt.ctrl.Close()
	}
	if rt.mqtt != nil {
		rt.mqtt.Close()
		rt.mqtt = nil
	}
	if rt.oled != nil {
		_ = rt.oled.Close()
		rt.oled = nil
	}
}
