package server

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Cell is one column value in a response.
type Cell struct {
	Column  string `json:"column"`
	Value   string `json:"value,omitempty"`
	Version int64  `json:"version"`
}

// Response represents the standard API response format.
type Response struct {
	Status    Status `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
	Row       string `json:"row,omitempty"`
	Cells     []Cell `json:"cells,omitempty"`
	Version   int64  `json:"version,omitempty"`
	ScannerID uint64 `json:"scanner_id,omitempty"`
	Done      bool   `json:"done,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewVersionResponse(version int64) Response {
	return Response{Status: StatusSuccess, Version: version}
}

func NewCellsResponse(cells []Cell) Response {
	return Response{Status: StatusSuccess, Cells: cells}
}

func NewRowResponse(row string, cells []Cell) Response {
	return Response{Status: StatusSuccess, Row: row, Cells: cells}
}

func NewScannerResponse(id uint64) Response {
	return Response{Status: StatusSuccess, ScannerID: id}
}

func NewDoneResponse() Response {
	return Response{Status: StatusSuccess, Done: true}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}
