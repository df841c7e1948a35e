//go:build !linux

package power

import "time"

type systemClocks struct{}

func (systemClocks) Read() (boot, mono time.Duration, err error) {
	return 0, 0, ErrUnsupported
}
