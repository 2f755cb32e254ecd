package serverutils

const (
	CodeSuccess = 200
	MsgSuccess  = "成功"
)

// ResponseModel is the envelope every JSON endpoint answers with.
type ResponseModel struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func SuccessResponse(message string, data interface{}) ResponseModel {
	if message == "" {
		message = MsgSuccess
	}
	return ResponseModel{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string) ResponseModel {
	return ResponseModel{
		Code:    code,
		Message: message,
	}
}
