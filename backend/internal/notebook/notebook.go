package notebook

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type Label struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

type DataSourceRef struct {
	ProviderType string         `json:"providerType"`
	Description  string         `json:"description,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// Notebook is treated as an immutable value: the operation engine builds a new one per applied
// operation and never writes through a Notebook it was handed.
type Notebook struct {
	ID        string    `json:"id"`
	Revision  uint32    `json:"revision"`
	Title     string    `json:"title"`
	Cells     []Cell    `json:"cells"`
	TimeRange TimeRange `json:"timeRange"`
	// name -> data source
	DataSources map[string]DataSourceRef `json:"dataSources,omitempty"`
	// provider type -> data source name
	SelectedDataSources map[string]string `json:"selectedDataSources,omitempty"`
	Labels              []Label           `json:"labels,omitempty"`
}

type CellWithIndex struct {
	Cell  Cell `json:"cell"`
	Index int  `json:"index"`
}

func (n *Notebook) CellByID(id string) (Cell, bool) {
	for _, c := range n.Cells {
		if c.CellID() == id {
			return c, true
		}
	}
	return nil, false
}

// CellIndex returns -1 when the cell does not exist.
func (n *Notebook) CellIndex(id string) int {
	for i, c := range n.Cells {
		if c.CellID() == id {
			return i
		}
	}
	return -1
}

func (n *Notebook) CellsWithIndex() []CellWithIndex {
	out := make([]CellWithIndex, len(n.Cells))
	for i, c := range n.Cells {
		out[i] = CellWithIndex{Cell: c, Index: i}
	}
	return out
}

func (n *Notebook) LabelByKey(key string) (Label, bool) {
	for _, l := range n.Labels {
		if l.Key == key {
			return l, true
		}
	}
	return Label{}, false
}

// Clone copies the containers of the notebook. Cells, annotations and data source configs are
// shared, since nothing mutates them in place.
func (n *Notebook) Clone() *Notebook {
	out := *n
	if len(n.Cells) > 0 {
		out.Cells = append([]Cell(nil), n.Cells...)
	} else {
		out.Cells = nil
	}
	if len(n.Labels) > 0 {
		out.Labels = append([]Label(nil), n.Labels...)
	} else {
		out.Labels = nil
	}
	out.DataSources = nil
	if len(n.DataSources) > 0 {
		out.DataSources = make(map[string]DataSourceRef, len(n.DataSources))
		for k, v := range n.DataSources {
			out.DataSources[k] = v
		}
	}
	out.SelectedDataSources = nil
	if len(n.SelectedDataSources) > 0 {
		out.SelectedDataSources = make(map[string]string, len(n.SelectedDataSources))
		for k, v := range n.SelectedDataSources {
			out.SelectedDataSources[k] = v
		}
	}
	return &out
}
