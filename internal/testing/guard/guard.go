package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("APP122_TEST_MODE") == "" {
			_ = os.Setenv("APP122_TEST_MODE", "1")
		}
	})
}
