package model

const (
	NoDataFault  = "No Data"
	HealthyFault = "Healthy"
)

// Diagnosis is the result triple served by the query endpoint.
type Diagnosis struct {
	Data      []float64 `json:"data"`
	FaultType string    `json:"fault_type"`
	RUL       int       `json:"rul"`

	ReadingID  string  `json:"-"`
	Confidence float64 `json:"-"`
}

// NoData is returned when the store holds no reading yet.
func NoData() Diagnosis {
	return Diagnosis{
		Data:      make([]float64, FeatureCount),
		FaultType: NoDataFault,
		RUL:       0,
	}
}

func (d Diagnosis) IsNoData() bool {
	return d.FaultType == NoDataFault && d.ReadingID == ""
}
