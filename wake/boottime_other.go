//go:build !linux

package wake

import (
	"github.com/tendermint/alarm/libs/log"
)

// BoottimeAlarms is only available on Linux.
func BoottimeAlarms(logger log.Logger) (AlarmFunc, error) {
	return nil, ErrUnsupported
}
