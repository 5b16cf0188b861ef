// Package merge reconciles a device-local cart snapshot with the remote cart
// of the user who just logged in.
package merge

import (
	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
)

// Result is the outcome of a merge along with the local lines that were
// discarded because they were malformed.
type Result struct {
	Snapshot domain.Snapshot
	Dropped  []domain.Line
}

// Merge folds local into remote. Remote lines keep their position and line
// ids; a local line with the same variant key adds its quantity to the remote
// line, clamped to the remote stock when that is known, otherwise to the local
// one. Local-only lines are appended with their own price and stock. Malformed
// lines, and local-only lines that would take the cart past domain.MaxLines,
// are dropped rather than failing the merge.
func Merge(local, remote domain.Snapshot) domain.Snapshot {
	return MergeWithReport(local, remote).Snapshot
}

// MergeWithReport is Merge that also reports dropped lines.
func MergeWithReport(local, remote domain.Snapshot) Result {
	result, dropped := domain.Normalize(remote)

	for _, l := range local {
		if l.Validate() != nil {
			dropped = append(dropped, l)
			continue
		}

		i := result.IndexOf(l.Key())
		if i < 0 {
			result = append(result, l.Clone())
			continue
		}

		r := &result[i]
		r.Stock = domain.PreferStock(r.Stock, l.Stock)
		r.Quantity = domain.Clamp(r.Quantity+l.Quantity, r.Stock)
	}

	normalized, more := domain.Normalize(result)
	return Result{Snapshot: normalized, Dropped: append(dropped, more...)}
}

// Equivalent reports whether two snapshots hold the same variants with the
// same quantities, ignoring order, line ids and display metadata.
func Equivalent(a, b domain.Snapshot) bool {
	qa, qb := quantities(a), quantities(b)
	if len(qa) != len(qb) {
		return false
	}
	for k, n := range qa {
		if qb[k] != n {
			return false
		}
	}
	return true
}

func quantities(s domain.Snapshot) map[domain.Key]int {
	out := make(map[domain.Key]int, len(s))
	for _, l := range s {
		out[l.Key()] += l.Quantity
	}
	return out
}
