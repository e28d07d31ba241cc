package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

// DeviceSensorProvider reads the position from a GPS receiver on a serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication
	open     func(*serial.Config) (io.ReadCloser, error)
}

// NewDeviceSensorProvider creates a provider for the receiver on port.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
		open: func(c *serial.Config) (io.ReadCloser, error) {
			return serial.OpenPort(c)
		},
	}
}

// GetLocation waits for the first GGA sentence carrying a fix.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context) (Location, error) {
	port, err := d.open(&serial.Config{Name: d.port, Baud: d.baudRate, ReadTimeout: time.Second})
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return Location{}, fmt.Errorf("open %s: %w", d.port, ErrPermissionDenied)
		}
		return Location{}, fmt.Errorf("open %s: %w", d.port, err)
	}
	defer port.Close()

	// Closing the port unblocks a pending read when ctx ends first.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	loc, err := readFix(port)
	if ctx.Err() != nil {
		return Location{}, ctx.Err()
	}
	return loc, err
}

// readFix scans NMEA lines until a GGA sentence with a valid fix appears.
func readFix(r io.Reader) (Location, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$GPGGA") && !strings.HasPrefix(line, "$GNGGA") {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		gga, ok := sentence.(nmea.GGA)
		if !ok || gga.FixQuality == nmea.Invalid {
			continue
		}
		return Location{
			Latitude:  gga.Latitude,
			Longitude: gga.Longitude,
			Accuracy:  gga.HDOP, // HDOP as a proxy for accuracy
		}, nil
	}
	if err := scanner.Err(); err != nil {
		return Location{}, fmt.Errorf("read gps: %w", err)
	}
	return Location{}, ErrUnavailable
}
