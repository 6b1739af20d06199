// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package raspi drives the control box from a Raspberry Pi through gobot.
package raspi

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gbebox/internal/hardware"
	"gbebox/internal/hardware/i2cdev"
	"gbebox/pkg/logger"

	"gobot.io/x/gobot/v2/platforms/raspi"
)

// adaptor is the subset of the gobot raspi adaptor the board uses.
type adaptor interface {
	Connect() error
	Finalize() error
	PwmWrite(pin string, val byte) error
	DigitalRead(pin string) (int, error)
}

type Board struct {
	log *logger.Logger
	hw  *hardware.Map
	pi  *raspi.Adaptor
	a   adaptor

	// gobot adaptors are not documented as goroutine safe
	mu sync.Mutex

	tach     *tach
	stopTach context.CancelFunc
	tachDone chan struct{}
}

func New(hw *hardware.Map) *Board {
	pi := raspi.NewAdaptor()
	return &Board{
		log:  logger.New("Raspi"),
		hw:   hw,
		pi:   pi,
		a:    pi,
		tach: &tach{},
	}
}

func (b *Board) Name() string { return "raspi" }

// Connect opens the GPIO, PWM and I2C subsystems and starts sampling the
// fan tachometer.
func (b *Board) Connect() error {
	b.mu.Lock()
	err := b.a.Connect()
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("raspi connect: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.stopTach = cancel
	b.tachDone = make(chan struct{})
	go b.pollTach(ctx)

	b.log.Info("connected")
	return nil
}

func (b *Board) Close() error {
	if b.stopTach != nil {
		b.stopTach()
		<-b.tachDone
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.a.Finalize()
}

func (b *Board) Outputs() hardware.Outputs { return outputs{b} }
func (b *Board) Pixel() hardware.Pixel     { return pixel{b} }
func (b *Board) Tach() hardware.Tachometer { return b.tach }

func (b *Board) pwm(pin string, duty uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.a.PwmWrite(pin, duty); err != nil {
		return fmt.Errorf("pwm pin %s: %w", pin, err)
	}
	return nil
}

type outputs struct{ b *Board }

func (o outputs) Write(ch hardware.Channel, duty uint8) error {
	pin := o.b.hw.PWM.Pin(ch)
	if pin == "" {
		return fmt.Errorf("no pin mapped for %s", ch)
	}
	return o.b.pwm(pin, duty)
}

type pixel struct{ b *Board }

func (p pixel) SetRGB(r, g, bl uint8) error {
	pins := p.b.hw.Pixel
	if err := p.b.pwm(pins.Red, r); err != nil {
		return err
	}
	if err := p.b.pwm(pins.Green, g); err != nil {
		return err
	}
	return p.b.pwm(pins.Blue, bl)
}

// OpenSensor opens the I2C device of kind and runs its driver setup. A
// device that does not answer is reported as not present.
func (b *Board) OpenSensor(kind hardware.SensorKind) (hardware.Sensor, error) {
	def, ok := b.hw.Sensors[kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, hardware.ErrNotPresent)
	}

	b.mu.Lock()
	conn, err := b.pi.GetI2cConnection(def.Address, def.Bus)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%s: i2c bus %d addr 0x%02x: %w", kind, def.Bus, def.Address, err)
	}
	c := &lockedConn{mu: &b.mu, c: conn}

	var s hardware.Sensor
	switch kind {
	case hardware.Power:
		s, err = i2cdev.NewINA219(c, b.hw.ShuntOhms)
	case hardware.Soil:
		s, err = i2cdev.NewSeesaw(c)
	case hardware.Air:
		s, err = i2cdev.NewAHT10(c)
	default:
		err = fmt.Errorf("unknown sensor kind %q", kind)
	}
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%s: %w: %v", kind, hardware.ErrNotPresent, err)
	}
	return s, nil
}

// lockedConn serialises I2C transfers with the rest of the adaptor.
type lockedConn struct {
	mu *sync.Mutex
	c  i2cdev.Conn
}

func (l *lockedConn) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Read(p)
}

func (l *lockedConn) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Write(p)
}

func (l *lockedConn) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Close()
}

// tach counts rising edges seen by the poller.
type tach struct {
	pulses atomic.Uint64
}

func (t *tach) Take() uint64 { return t.pulses.Swap(0) }

// pollTach samples the tach pin and counts rising edges. gobot has no
// edge interrupts on the Pi, so the pin is polled.
func (b *Board) pollTach(ctx context.Context) {
	defer close(b.tachDone)

	period := time.Duration(b.hw.Tach.PollMicros) * time.Microsecond
	if period <= 0 {
		period = 500 * time.Microsecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	prev := 0
	failed := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		v, err := b.a.DigitalRead(b.hw.Tach.Pin)
		b.mu.Unlock()
		if err != nil {
			if !failed {
				b.log.Warn("tach pin %s: %v", b.hw.Tach.Pin, err)
				failed = true
			}
			continue
		}
		failed = false
		if v == 1 && prev == 0 {
			b.tach.pulses.Add(1)
		}
		prev = v
	}
}
