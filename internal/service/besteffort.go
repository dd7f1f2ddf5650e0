package service

import (
	"github.com/sirupsen/logrus"
)

// bestEffort runs a side effect whose failure must not change the outcome of
// the operation that triggered it. Failures and panics are logged only.
func bestEffort(log *logrus.Entry, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("side_effect", name).Errorf("Side effect panicked: %v", r)
		}
	}()
	if err := fn(); err != nil {
		log.WithError(err).WithField("side_effect", name).Warn("Side effect failed")
	}
}
