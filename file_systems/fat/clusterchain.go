package fat

import (
	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/disko/errors"
)

// Allocate scans clusters [2, clustersCount) for the first Free entry, marks
// it Last, zeroes its contents, and returns it (spec §4.3). It fails with
// NoFreeCluster if the table is exhausted; no partial update is left behind
// in that case, since Allocate never writes until it finds a candidate.
func (fs *Fs) Allocate() (ClusterID, error) {
	if err := fs.checkWritable(); err != nil {
		return 0, err
	}

	for c := ClusterID(2); uint(c) < fs.boot.ClustersCount; c++ {
		value, err := fs.table.Get(c)
		if err != nil {
			return 0, err
		}
		if value.Kind != ClusterFree {
			continue
		}

		if err := fs.table.Set(c, Last()); err != nil {
			return 0, err
		}
		if err := fs.zeroCluster(c); err != nil {
			return 0, err
		}
		return c, nil
	}

	return 0, errors.ErrNoSpaceOnDevice.WithMessage("no free cluster available")
}

// zeroCluster overwrites the full contents of cluster c with null bytes.
func (fs *Fs) zeroCluster(c ClusterID) error {
	zeros := make([]byte, fs.boot.BytesPerCluster)
	return fs.WriteCluster(c, 0, zeros)
}

// Extend allocates a new cluster and appends it to the chain ending at c,
// returning the new cluster (spec §4.3).
func (fs *Fs) Extend(c ClusterID) (ClusterID, error) {
	next, err := fs.Allocate()
	if err != nil {
		return 0, err
	}
	if err := fs.table.Set(c, NextCluster(next)); err != nil {
		return 0, err
	}
	return next, nil
}

// Truncate keeps c as the first cluster of its chain, marks it Last, and
// frees everything that followed it. It is a no-op if c is already Last
// (spec §4.3).
func (fs *Fs) Truncate(c ClusterID) error {
	if err := fs.checkWritable(); err != nil {
		return err
	}

	value, err := fs.table.Get(c)
	if err != nil {
		return err
	}
	if value.Kind == ClusterLast {
		return nil
	}
	if value.Kind != ClusterNext {
		return errors.ErrUnexpectedClusterValue.WithMessage(
			"Truncate called on a cluster that is not the head of a live chain")
	}

	if err := fs.table.Set(c, Last()); err != nil {
		return err
	}
	return fs.freeChain(value.Next)
}

// Free walks the chain starting at c, setting every visited cluster to Free,
// and stops after the cluster whose value is Last (spec §4.3). This is the
// entry point used when an entire chain -- not just a tail -- is being
// released (e.g. removing a file or directory).
func (fs *Fs) Free(c ClusterID) error {
	if err := fs.checkWritable(); err != nil {
		return err
	}
	return fs.freeChain(c)
}

// freeChain implements the conservative redesign from spec §9: rather than
// aborting on the first unexpected Free/Bad entry mid-chain (which would
// leak every cluster after it), it continues the walk to free as much of the
// chain as is legitimately reachable, collecting every anomaly it
// encounters and reporting them together once the walk is exhausted.
func (fs *Fs) freeChain(start ClusterID) error {
	var anomalies *multierror.Error
	current := start
	seen := map[ClusterID]bool{}

	for {
		if seen[current] {
			// A cycle in the chain; nothing more to do without looping
			// forever.
			anomalies = multierror.Append(anomalies, errors.ErrUnexpectedClusterValue.WithMessage(
				"cycle detected while freeing cluster chain"))
			break
		}
		seen[current] = true

		value, err := fs.table.Get(current)
		if err != nil {
			return err
		}

		switch value.Kind {
		case ClusterFree, ClusterBad:
			anomalies = multierror.Append(anomalies, errors.ErrUnexpectedClusterValue.WithMessage(
				"encountered Free or Bad cluster mid-chain during free()"))
		case ClusterLast:
			if err := fs.table.Set(current, Free()); err != nil {
				return err
			}
			return anomalies.ErrorOrNil()
		case ClusterNext:
			next := value.Next
			if err := fs.table.Set(current, Free()); err != nil {
				return err
			}
			current = next
			continue
		}
		break
	}

	return anomalies.ErrorOrNil()
}
