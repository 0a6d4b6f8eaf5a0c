package directory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"evroaming/backend/services/sessions-service/internal/models"
)

type seedFile struct {
	Networks []seedNetwork `yaml:"networks"`
}

type seedNetwork struct {
	ID        models.RoamingNetworkID `yaml:"id"`
	Name      string                  `yaml:"name"`
	Operators []seedOperator          `yaml:"operators"`
}

type seedOperator struct {
	ID    models.OperatorID `yaml:"id"`
	Name  string            `yaml:"name"`
	Pools []seedPool        `yaml:"pools"`
}

type seedPool struct {
	ID       models.ChargingPoolID `yaml:"id"`
	Name     string                `yaml:"name"`
	Stations []seedStation         `yaml:"stations"`
}

type seedStation struct {
	ID    models.ChargingStationID `yaml:"id"`
	EVSEs []models.EVSEID          `yaml:"evses"`
}

// LoadFile reads a YAML directory file into r.
//
//	networks:
//	  - id: DE*GEF
//	    operators:
//	      - id: DE*GEF
//	        pools:
//	          - id: P1
//	            stations:
//	              - id: S1
//	                evses: [DE*GEF*E1, DE*GEF*E2]
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("directory: read %s: %w", path, err)
	}
	return r.Load(data)
}

// Load registers every entity of a YAML directory document. Parents are
// registered before their children; the first failure aborts the load.
func (r *Registry) Load(data []byte) error {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("directory: decode: %w", err)
	}

	for _, n := range seed.Networks {
		if err := r.AddRoamingNetwork(models.RoamingNetwork{ID: n.ID, Name: n.Name}); err != nil {
			return err
		}
		for _, o := range n.Operators {
			if err := r.AddOperator(models.Operator{ID: o.ID, NetworkID: n.ID, Name: o.Name}); err != nil {
				return err
			}
			for _, p := range o.Pools {
				if err := r.AddChargingPool(models.ChargingPool{ID: p.ID, OperatorID: o.ID, Name: p.Name}); err != nil {
					return err
				}
				for _, s := range p.Stations {
					if err := r.AddChargingStation(models.ChargingStation{ID: s.ID, PoolID: p.ID}); err != nil {
						return err
					}
					for _, id := range s.EVSEs {
						if err := r.AddEVSE(models.EVSE{ID: id, StationID: s.ID}); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}
