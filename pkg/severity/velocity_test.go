package severity

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeMembershipCounter struct {
	count int
	err   error
}

func (f *fakeMembershipCounter) CountMembershipsInWindow(ctx context.Context, incidentID int64, windowHours float64, now int64) (int, error) {
	return f.count, f.err
}

var _ = Describe("WindowVelocityDetector", func() {
	It("divides the membership count by the window size", func() {
		counter := &fakeMembershipCounter{count: 2}
		detector := NewWindowVelocityDetector(counter)

		v, err := detector.Velocity(context.Background(), 1, 24.0, 1700000000)

		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(2.0 / 24.0))
	})

	It("returns zero for a non-positive window instead of dividing by zero", func() {
		counter := &fakeMembershipCounter{count: 5}
		detector := NewWindowVelocityDetector(counter)

		v, err := detector.Velocity(context.Background(), 1, 0, 1700000000)

		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(0.0))
	})

	It("propagates the counter's error", func() {
		counter := &fakeMembershipCounter{err: errors.New("boom")}
		detector := NewWindowVelocityDetector(counter)

		_, err := detector.Velocity(context.Background(), 1, 24.0, 1700000000)

		Expect(err).To(MatchError("boom"))
	})
})
