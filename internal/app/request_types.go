package app

// ProvisionWarehouseRequest is the input for creating a warehouse.
type ProvisionWarehouseRequest struct {
	Code         string
	Name         string
	GSTIN        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Pincode      string
	Country      string
}

// AddLocationRequest is the input for creating a physical location.
type AddLocationRequest struct {
	Warehouse   string
	Code        string
	DisplayName string
}

// RegisterItemRequest mirrors one catalog item into the ledger's item table.
type RegisterItemRequest struct {
	ID   string
	SKU  string
	Name string
}

// MoveRequest is the JSON payload read by `stockctl move`.
type MoveRequest struct {
	Warehouse string          `json:"warehouse" jsonschema_description:"Warehouse code or numeric id"`
	From      string          `json:"from,omitempty" jsonschema_description:"Default source location code for lines that omit one"`
	To        string          `json:"to,omitempty" jsonschema_description:"Default target location code for lines that omit one"`
	Lines     []MoveLineInput `json:"lines" jsonschema_description:"Items to move; lines sharing item, source and target are merged"`
	Memo      string          `json:"memo,omitempty" jsonschema_description:"Memo recorded when every line shares one source and target"`
	Ref       string          `json:"ref,omitempty" jsonschema_description:"Batch reference; reusing one that was already posted is reported as a duplicate"`
	Actor     string          `json:"actor,omitempty" jsonschema_description:"User recorded on the ledger rows"`
	Strict    bool            `json:"strict,omitempty" jsonschema_description:"Single-line move that fails outright when the source is short"`
}

// MoveLineInput is one line of a MoveRequest.
type MoveLineInput struct {
	Item string `json:"item" jsonschema_description:"Item id"`
	From string `json:"from,omitempty" jsonschema_description:"Source physical location code"`
	To   string `json:"to,omitempty" jsonschema_description:"Target physical location code"`
	Qty  string `json:"qty" jsonschema_description:"Positive decimal quantity, e.g. \"2.5\""`
}

// PutawayRequest is the JSON payload read by `stockctl putaway`.
type PutawayRequest struct {
	Warehouse string               `json:"warehouse" jsonschema_description:"Warehouse code or numeric id"`
	Actions   []PutawayActionInput `json:"actions" jsonschema_description:"Putaway actions; identical actions are merged"`
	Reasons   map[string]string    `json:"reasons,omitempty" jsonschema_description:"Memo per source bin, e.g. {\"RETURN\": \"customer return\"}"`
	Ref       string               `json:"ref,omitempty" jsonschema_description:"Batch reference; defaults to putaway:<timestamp>:<random>"`
	Actor     string               `json:"actor,omitempty" jsonschema_description:"User recorded on the ledger rows"`
}

// PutawayActionInput is one action of a PutawayRequest.
type PutawayActionInput struct {
	Type   string `json:"type" jsonschema:"enum=PUTAWAY,enum=LOST" jsonschema_description:"PUTAWAY into a location, or LOST into the LOST bin"`
	Item   string `json:"item" jsonschema_description:"Item id"`
	Source string `json:"source" jsonschema:"enum=RETURN,enum=RECEIVE" jsonschema_description:"Virtual bin the stock is taken from"`
	Qty    string `json:"qty" jsonschema_description:"Positive decimal quantity"`
	Target string `json:"target,omitempty" jsonschema_description:"Target physical location code; required for PUTAWAY"`
}
