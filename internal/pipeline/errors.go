package pipeline

import (
	"errors"
	"fmt"
)

// 错误定义
var (
	// ErrInvalidParameter 调用方参数错误（未知项目类型、日期格式错误），不重试
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidWindow 统计区间无效，属于 ErrInvalidParameter
	ErrInvalidWindow = fmt.Errorf("%w: invalid window", ErrInvalidParameter)
)

// RetrievalError 存储层查询失败，原样向上传递，不在此处重试
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("candidate retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// IsInvalidParameter 判断是否为参数错误
func IsInvalidParameter(err error) bool {
	return errors.Is(err, ErrInvalidParameter)
}

// IsRetrievalFailure 判断是否为存储层错误
func IsRetrievalFailure(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}
