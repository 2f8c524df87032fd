package hyperloglog_test

import (
	"fmt"

	"github.com/fidde/cardinality_estimator/pkg/hashing"
	"github.com/fidde/cardinality_estimator/pkg/hyperloglog"
	"github.com/fidde/cardinality_estimator/pkg/stream"
)

// Example shows a single estimation pass with an explicitly seeded hash family.
func Example() {
	family, _ := hashing.NewMurmur3(1, 42)
	users := stream.Corpus{"user_1", "user_2", "user_3", "user_1"}

	estimate, err := hyperloglog.Estimate(users.All(), 14, family)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("Unique users: ~%.0f\n", estimate)
	// Output: Unique users: ~3
}

// Example_precisionOutOfRange shows the error for an invalid precision.
func Example_precisionOutOfRange() {
	family, _ := hashing.NewMurmur3(1, 42)

	_, err := hyperloglog.Estimate(stream.Corpus{"a"}.All(), 3, family)
	fmt.Println(err)
	// Output: hyperloglog: precision out of range: got 3, want 4..16
}
