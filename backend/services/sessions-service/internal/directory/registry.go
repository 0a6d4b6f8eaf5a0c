package directory

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"evroaming/backend/services/sessions-service/internal/models"
)

// ErrUnknownParent is returned when an entity references a parent that is not registered.
var ErrUnknownParent = errors.New("directory: unknown parent")

// Registry keeps the roaming network hierarchy in memory for quick lookups.
// Lookups never mutate state and return copies.
type Registry struct {
	mu       sync.RWMutex
	networks map[models.RoamingNetworkID]models.RoamingNetwork
	ops      map[models.OperatorID]models.Operator
	pools    map[models.ChargingPoolID]models.ChargingPool
	stations map[models.ChargingStationID]models.ChargingStation
	evses    map[models.EVSEID]models.EVSE
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		networks: make(map[models.RoamingNetworkID]models.RoamingNetwork),
		ops:      make(map[models.OperatorID]models.Operator),
		pools:    make(map[models.ChargingPoolID]models.ChargingPool),
		stations: make(map[models.ChargingStationID]models.ChargingStation),
		evses:    make(map[models.EVSEID]models.EVSE),
	}
}

// AddRoamingNetwork registers a network.
func (r *Registry) AddRoamingNetwork(n models.RoamingNetwork) error {
	if n.ID.IsEmpty() {
		return errors.New("directory: roaming network id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks[n.ID] = n
	return nil
}

// AddOperator registers an operator under an existing network.
func (r *Registry) AddOperator(o models.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.networks[o.NetworkID]; !ok {
		return fmt.Errorf("%w: roaming network %q", ErrUnknownParent, o.NetworkID)
	}
	r.ops[o.ID] = o
	return nil
}

// AddChargingPool registers a pool under an existing operator.
func (r *Registry) AddChargingPool(p models.ChargingPool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ops[p.OperatorID]; !ok {
		return fmt.Errorf("%w: operator %q", ErrUnknownParent, p.OperatorID)
	}
	r.pools[p.ID] = p
	return nil
}

// AddChargingStation registers a station under an existing pool.
func (r *Registry) AddChargingStation(s models.ChargingStation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[s.PoolID]; !ok {
		return fmt.Errorf("%w: charging pool %q", ErrUnknownParent, s.PoolID)
	}
	r.stations[s.ID] = s
	return nil
}

// AddEVSE registers an EVSE under an existing station.
func (r *Registry) AddEVSE(e models.EVSE) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stations[e.StationID]; !ok {
		return fmt.Errorf("%w: charging station %q", ErrUnknownParent, e.StationID)
	}
	if e.Status == "" {
		e.Status = models.EVSEStatusUnknown
	}
	r.evses[e.ID] = e
	return nil
}

// SetEVSEStatus updates the status of a known EVSE. Unknown ids are ignored.
func (r *Registry) SetEVSEStatus(id models.EVSEID, status models.EVSEStatus, ts time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	evse, ok := r.evses[id]
	if !ok {
		return false
	}
	evse.Status = status
	evse.StatusChangedAt = ts
	r.evses[id] = evse
	return true
}

func (r *Registry) RoamingNetwork(id models.RoamingNetworkID) (models.RoamingNetwork, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.networks[id]
	return n, ok
}

func (r *Registry) Operator(id models.OperatorID) (models.Operator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.ops[id]
	return o, ok
}

func (r *Registry) ChargingPool(id models.ChargingPoolID) (models.ChargingPool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[id]
	return p, ok
}

func (r *Registry) ChargingStation(id models.ChargingStationID) (models.ChargingStation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stations[id]
	return s, ok
}

func (r *Registry) EVSE(id models.EVSEID) (models.EVSE, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evses[id]
	return e, ok
}

// EVSEIDs returns all registered EVSE ids in sorted order.
func (r *Registry) EVSEIDs() []models.EVSEID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]models.EVSEID, 0, len(r.evses))
	for id := range r.evses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
