package dberr

// Kind identifies a fault family. Kinds form a closed tree rooted at Base:
//
//	Base
//	├── Interface
//	│   └── InvalidOption
//	└── Database
//	    ├── Internal
//	    ├── NotSupported
//	    └── Operational
//	        ├── Request
//	        │   └── API
//	        │       ├── Auth
//	        │       ├── Payload
//	        │       ├── PayloadPathKey
//	        │       └── PendingResultTimeout
//	        └── APIUnavailable
//
// A Kind is itself an error so it can be used as an errors.Is target.
type Kind int

const (
	Base Kind = iota
	Interface
	InvalidOption
	Database
	Internal
	NotSupported
	Operational
	Request
	API
	Auth
	Payload
	PayloadPathKey
	PendingResultTimeout
	APIUnavailable
)

var parents = [...]Kind{
	Base:                 Base,
	Interface:            Base,
	InvalidOption:        Interface,
	Database:             Base,
	Internal:             Database,
	NotSupported:         Database,
	Operational:          Database,
	Request:              Operational,
	API:                  Request,
	Auth:                 API,
	Payload:              API,
	PayloadPathKey:       API,
	PendingResultTimeout: API,
	APIUnavailable:       Operational,
}

var names = [...]string{
	Base:                 "Error",
	Interface:            "InterfaceError",
	InvalidOption:        "InvalidOptionError",
	Database:             "DatabaseError",
	Internal:             "InternalError",
	NotSupported:         "NotSupportedError",
	Operational:          "OperationalError",
	Request:              "RequestError",
	API:                  "ApiError",
	Auth:                 "AuthError",
	Payload:              "PayloadError",
	PayloadPathKey:       "PayloadPathKeyError",
	PendingResultTimeout: "PendingResultTimeout",
	APIUnavailable:       "ApiUnavailable",
}

func (k Kind) valid() bool {
	return k >= Base && int(k) < len(parents)
}

func (k Kind) String() string {
	if !k.valid() {
		return "UnknownError"
	}
	return names[k]
}

func (k Kind) Error() string {
	return k.String()
}

// Parent returns the enclosing family. Base is its own parent.
func (k Kind) Parent() Kind {
	if !k.valid() {
		return Base
	}
	return parents[k]
}

// In reports whether k is ancestor or one of its descendants.
func (k Kind) In(ancestor Kind) bool {
	for {
		if k == ancestor {
			return true
		}
		if k == Base {
			return false
		}
		k = k.Parent()
	}
}
