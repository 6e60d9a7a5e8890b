package message

import "fmt"

// Class is the 3-bit class of a code.
type Class uint8

const (
	ClassRequest     Class = 0
	ClassSuccess     Class = 2
	ClassClientError Class = 4
	ClassServerError Class = 5
)

// String returns a human-readable name for the class.
func (c Class) String() string {
	switch c {
	case ClassRequest:
		return "Request"
	case ClassSuccess:
		return "Success"
	case ClassClientError:
		return "ClientError"
	case ClassServerError:
		return "ServerError"
	default:
		return "Unknown"
	}
}

// IsValid returns true for the classes defined by RFC 7252.
func (c Class) IsValid() bool {
	switch c {
	case ClassRequest, ClassSuccess, ClassClientError, ClassServerError:
		return true
	}
	return false
}

// Code is the 8-bit c.dd code: class in the top 3 bits, detail in the low 5.
type Code uint8

const (
	codeClassShift       = 5
	codeDetailMask uint8 = 0x1F

	// MaxDetail is exclusive: detail 31 is rejected in every class.
	MaxDetail uint8 = 31
)

// NewCode combines a class and a detail.
func NewCode(class Class, detail uint8) Code {
	return Code(uint8(class)<<codeClassShift | detail&codeDetailMask)
}

// Request method codes (class 0).
const (
	Empty  Code = 0
	GET    Code = 1
	POST   Code = 2
	PUT    Code = 3
	DELETE Code = 4
)

// Success response codes (class 2).
const (
	Created Code = Code(ClassSuccess)<<codeClassShift | 1
	Deleted Code = Code(ClassSuccess)<<codeClassShift | 2
	Valid   Code = Code(ClassSuccess)<<codeClassShift | 3
	Changed Code = Code(ClassSuccess)<<codeClassShift | 4
	Content Code = Code(ClassSuccess)<<codeClassShift | 5
)

// Client error response codes (class 4).
const (
	BadRequest               Code = Code(ClassClientError)<<codeClassShift | 0
	Unauthorized             Code = Code(ClassClientError)<<codeClassShift | 1
	BadOption                Code = Code(ClassClientError)<<codeClassShift | 2
	Forbidden                Code = Code(ClassClientError)<<codeClassShift | 3
	NotFound                 Code = Code(ClassClientError)<<codeClassShift | 4
	MethodNotAllowed         Code = Code(ClassClientError)<<codeClassShift | 5
	NotAcceptable            Code = Code(ClassClientError)<<codeClassShift | 6
	PreconditionFailed       Code = Code(ClassClientError)<<codeClassShift | 12
	RequestEntityTooLarge    Code = Code(ClassClientError)<<codeClassShift | 13
	UnsupportedContentFormat Code = Code(ClassClientError)<<codeClassShift | 15
)

// Server error response codes (class 5).
const (
	InternalServerError  Code = Code(ClassServerError)<<codeClassShift | 0
	NotImplemented       Code = Code(ClassServerError)<<codeClassShift | 1
	BadGateway           Code = Code(ClassServerError)<<codeClassShift | 2
	ServiceUnavailable   Code = Code(ClassServerError)<<codeClassShift | 3
	GatewayTimeout       Code = Code(ClassServerError)<<codeClassShift | 4
	ProxyingNotSupported Code = Code(ClassServerError)<<codeClassShift | 5
)

var codeNames = map[Code]string{
	Empty:                    "Empty",
	GET:                      "GET",
	POST:                     "POST",
	PUT:                      "PUT",
	DELETE:                   "DELETE",
	Created:                  "Created",
	Deleted:                  "Deleted",
	Valid:                    "Valid",
	Changed:                  "Changed",
	Content:                  "Content",
	BadRequest:               "Bad Request",
	Unauthorized:             "Unauthorized",
	BadOption:                "Bad Option",
	Forbidden:                "Forbidden",
	NotFound:                 "Not Found",
	MethodNotAllowed:         "Method Not Allowed",
	NotAcceptable:            "Not Acceptable",
	PreconditionFailed:       "Precondition Failed",
	RequestEntityTooLarge:    "Request Entity Too Large",
	UnsupportedContentFormat: "Unsupported Content-Format",
	InternalServerError:      "Internal Server Error",
	NotImplemented:           "Not Implemented",
	BadGateway:               "Bad Gateway",
	ServiceUnavailable:       "Service Unavailable",
	GatewayTimeout:           "Gateway Timeout",
	ProxyingNotSupported:     "Proxying Not Supported",
}

// Class returns the class bits.
func (c Code) Class() Class {
	return Class(uint8(c) >> codeClassShift)
}

// Detail returns the detail bits.
func (c Code) Detail() uint8 {
	return uint8(c) & codeDetailMask
}

// String returns "c.dd Name", e.g. "2.05 Content".
func (c Code) String() string {
	name, ok := codeNames[c]
	if !ok {
		name = "Unknown"
	}
	return fmt.Sprintf("%d.%02d %s", c.Class(), c.Detail(), name)
}

// IsValid reports whether the class is defined and the detail is not 31.
func (c Code) IsValid() bool {
	return c.Class().IsValid() && c.Detail() < MaxDetail
}

// IsRequest reports a method code (class 0, non-empty).
func (c Code) IsRequest() bool {
	return c.Class() == ClassRequest && c != Empty
}

// IsResponse reports a response code (class 2, 4 or 5).
func (c Code) IsResponse() bool {
	cl := c.Class()
	return cl == ClassSuccess || cl == ClassClientError || cl == ClassServerError
}

// IsSuccess reports a 2.xx code.
func (c Code) IsSuccess() bool { return c.Class() == ClassSuccess }

// IsError reports a 4.xx or 5.xx code.
func (c Code) IsError() bool {
	return c.Class() == ClassClientError || c.Class() == ClassServerError
}
