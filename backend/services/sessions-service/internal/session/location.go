package session

import "evroaming/backend/services/sessions-service/internal/models"

// Location levels from most general to most specific.
const (
	levelNetwork = iota
	levelOperator
	levelPool
	levelStation
	levelEVSE
)

// Setting a level resolves every parent through the directory and overwrites
// them. A failed lookup leaves the remaining parents empty. Setting a level
// is refused when a more specific level is set and the current id at this
// level differs, so the chain never contradicts itself.

func (s *ChargingSession) SetEVSEID(id models.EVSEID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cascadeEVSE(id)
	return true
}

// SetEVSE sets the EVSE from a known object without a directory lookup.
func (s *ChargingSession) SetEVSE(e models.EVSE) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evseID = e.ID
	s.cascadeStation(e.StationID)
	return true
}

func (s *ChargingSession) SetChargingStationID(id models.ChargingStationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(levelStation, s.stationID == id) {
		return false
	}
	s.cascadeStation(id)
	return true
}

func (s *ChargingSession) SetChargingStation(st models.ChargingStation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(levelStation, s.stationID == st.ID) {
		return false
	}
	s.stationID = st.ID
	s.cascadePool(st.PoolID)
	return true
}

func (s *ChargingSession) SetChargingPoolID(id models.ChargingPoolID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(levelPool, s.poolID == id) {
		return false
	}
	s.cascadePool(id)
	return true
}

func (s *ChargingSession) SetChargingPool(p models.ChargingPool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(levelPool, s.poolID == p.ID) {
		return false
	}
	s.poolID = p.ID
	s.cascadeOperator(p.OperatorID)
	return true
}

func (s *ChargingSession) SetOperatorID(id models.OperatorID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(levelOperator, s.operatorID == id) {
		return false
	}
	s.cascadeOperator(id)
	return true
}

func (s *ChargingSession) SetOperator(o models.Operator) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(levelOperator, s.operatorID == o.ID) {
		return false
	}
	s.operatorID = o.ID
	s.networkID = o.NetworkID
	return true
}

func (s *ChargingSession) SetRoamingNetworkID(id models.RoamingNetworkID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(levelNetwork, s.networkID == id) {
		return false
	}
	s.networkID = id
	return true
}

// conflicts reports whether changing level would contradict a more specific one.
func (s *ChargingSession) conflicts(level int, same bool) bool {
	if same {
		return false
	}
	current := s.idAt(level)
	return current != "" && s.mostSpecificLevel() > level
}

func (s *ChargingSession) idAt(level int) string {
	switch level {
	case levelNetwork:
		return string(s.networkID)
	case levelOperator:
		return string(s.operatorID)
	case levelPool:
		return string(s.poolID)
	case levelStation:
		return string(s.stationID)
	default:
		return string(s.evseID)
	}
}

func (s *ChargingSession) mostSpecificLevel() int {
	for level := levelEVSE; level >= levelNetwork; level-- {
		if s.idAt(level) != "" {
			return level
		}
	}
	return -1
}

func (s *ChargingSession) cascadeEVSE(id models.EVSEID) {
	s.evseID = id
	if id.IsEmpty() || s.dir == nil {
		s.cascadeStation("")
		return
	}
	e, ok := s.dir.EVSE(id)
	if !ok {
		s.cascadeStation("")
		return
	}
	s.cascadeStation(e.StationID)
}

func (s *ChargingSession) cascadeStation(id models.ChargingStationID) {
	s.stationID = id
	if id.IsEmpty() || s.dir == nil {
		s.cascadePool("")
		return
	}
	st, ok := s.dir.ChargingStation(id)
	if !ok {
		s.cascadePool("")
		return
	}
	s.cascadePool(st.PoolID)
}

func (s *ChargingSession) cascadePool(id models.ChargingPoolID) {
	s.poolID = id
	if id.IsEmpty() || s.dir == nil {
		s.cascadeOperator("")
		return
	}
	p, ok := s.dir.ChargingPool(id)
	if !ok {
		s.cascadeOperator("")
		return
	}
	s.cascadeOperator(p.OperatorID)
}

func (s *ChargingSession) cascadeOperator(id models.OperatorID) {
	s.operatorID = id
	if id.IsEmpty() || s.dir == nil {
		s.networkID = ""
		return
	}
	o, ok := s.dir.Operator(id)
	if !ok {
		s.networkID = ""
		return
	}
	s.networkID = o.NetworkID
}

func (s *ChargingSession) EVSEID() models.EVSEID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evseID
}

func (s *ChargingSession) ChargingStationID() models.ChargingStationID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stationID
}

func (s *ChargingSession) ChargingPoolID() models.ChargingPoolID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.poolID
}

func (s *ChargingSession) OperatorID() models.OperatorID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operatorID
}

func (s *ChargingSession) RoamingNetworkID() models.RoamingNetworkID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.networkID
}

// EVSE resolves the current EVSE id.
func (s *ChargingSession) EVSE() (models.EVSE, bool) {
	id := s.EVSEID()
	if id.IsEmpty() || s.dir == nil {
		return models.EVSE{}, false
	}
	return s.dir.EVSE(id)
}

func (s *ChargingSession) ChargingStation() (models.ChargingStation, bool) {
	id := s.ChargingStationID()
	if id.IsEmpty() || s.dir == nil {
		return models.ChargingStation{}, false
	}
	return s.dir.ChargingStation(id)
}

func (s *ChargingSession) ChargingPool() (models.ChargingPool, bool) {
	id := s.ChargingPoolID()
	if id.IsEmpty() || s.dir == nil {
		return models.ChargingPool{}, false
	}
	return s.dir.ChargingPool(id)
}

func (s *ChargingSession) Operator() (models.Operator, bool) {
	id := s.OperatorID()
	if id.IsEmpty() || s.dir == nil {
		return models.Operator{}, false
	}
	return s.dir.Operator(id)
}

func (s *ChargingSession) RoamingNetwork() (models.RoamingNetwork, bool) {
	id := s.RoamingNetworkID()
	if id.IsEmpty() || s.dir == nil {
		return models.RoamingNetwork{}, false
	}
	return s.dir.RoamingNetwork(id)
}
