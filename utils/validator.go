package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"onlinelibrary_go/models"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()
	// 自定义验证错误缓存
	validationErrorsCache sync.Map

	usernamePattern   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	personNamePattern = regexp.MustCompile(`^[\p{L}][\p{L} '\-]*$`)
)

// 初始化验证器
// 与 gin 共用 binding 标签，自定义规则同时注册到 gin 的验证引擎
func init() {
	validate.SetTagName("binding")
	registerCustomValidations(validate)
	if engine, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerCustomValidations(engine)
	}
}

// registerCustomValidations 注册自定义验证规则
func registerCustomValidations(v *validator.Validate) {
	// 错误信息中使用json字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v.RegisterValidation("password", validatePassword)
	v.RegisterValidation("username", validateUsername)
	v.RegisterValidation("isbn", validateISBN)
	v.RegisterValidation("imageurl", validateImageURL)
	v.RegisterValidation("personname", validatePersonName)
	v.RegisterValidation("pubyear", validatePubYear)
}

// Validator 验证器结构
type Validator struct {
	validator *validator.Validate
}

// NewValidator 创建新的验证器实例
func NewValidator() *Validator {
	return &Validator{
		validator: validate,
	}
}

// Validate 验证结构体
func (v *Validator) Validate(obj interface{}) error {
	if err := v.validator.Struct(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return err
	}
	return nil
}

// formatValidationErrors 格式化验证错误信息
func formatValidationErrors(errors []validator.FieldError) error {
	errorMap := make(map[string]string)

	for _, err := range errors {
		field := err.Field()
		tag := err.Tag()
		param := err.Param()

		// 先尝试从缓存中获取错误信息
		cacheKey := fmt.Sprintf("%s_%s_%s", field, tag, param)
		if msg, exists := validationErrorsCache.Load(cacheKey); exists {
			errorMap[field] = msg.(string)
			continue
		}

		// 生成自定义错误信息
		msg := getErrorMessage(field, tag, param)
		validationErrorsCache.Store(cacheKey, msg)
		errorMap[field] = msg
	}

	return &ValidationError{Errors: errorMap}
}

// ValidationError 验证错误结构
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("Validation failed: %v", ve.Errors)
}

// getErrorMessage 获取错误消息
func getErrorMessage(field, tag, param string) string {
	// 中文错误消息映射
	errorMessages := map[string]string{
		"required":   "%s不能为空",
		"email":      "%s格式不正确",
		"min":        "%s长度不能小于%s",
		"max":        "%s长度不能大于%s",
		"gt":         "%s必须大于%s",
		"gte":        "%s必须大于或等于%s",
		"lt":         "%s必须小于%s",
		"lte":        "%s必须小于或等于%s",
		"oneof":      "%s必须是以下值之一: %s",
		"alpha":      "%s只能包含字母",
		"alphanum":   "%s只能包含字母和数字",
		"numeric":    "%s必须是数字",
		"e164":       "%s必须是有效的手机号",
		"password":   "%s格式不正确，必须包含大小写字母、数字和特殊字符",
		"username":   "%s只能包含字母、数字和下划线，且以字母开头",
		"isbn":       "%s格式不正确，应为 X-XXXX-XXXX-X 或 XXX-X-XXXX-XXXX-X",
		"imageurl":   "%s必须是以 .jpg、.jpeg 或 .png 结尾的 http(s) 地址",
		"personname": "%s只能包含字母、空格、撇号和连字符",
		"pubyear":    "%s必须在1901年至今年之间",
	}

	fieldNames := map[string]string{
		"username":         "用户名",
		"email":            "邮箱",
		"password":         "密码",
		"phone":            "手机号",
		"title":            "标题",
		"price":            "价格",
		"content":          "内容",
		"summary":          "摘要",
		"isbn":             "ISBN",
		"image_url":        "封面地址",
		"year_of_pub":      "出版年份",
		"author_pseudonym": "作者笔名",
		"category":         "分类",
		"first_name":       "名",
		"last_name":        "姓",
		"evaluation":       "评分",
		"address":          "地址",
	}

	fieldName, exists := fieldNames[field]
	if !exists {
		fieldName = field
	}

	template, exists := errorMessages[tag]
	if !exists {
		return fmt.Sprintf("%s验证失败", fieldName)
	}

	if strings.Count(template, "%s") == 1 {
		return fmt.Sprintf(template, fieldName)
	}
	return fmt.Sprintf(template, fieldName, param)
}

// 自定义验证规则

// validatePassword 密码验证
func validatePassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	if len(password) < 8 {
		return false
	}

	var (
		hasUpper   bool
		hasLower   bool
		hasNumber  bool
		hasSpecial bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	return hasUpper && hasLower && hasNumber && hasSpecial
}

// validateUsername 用户名验证
func validateUsername(fl validator.FieldLevel) bool {
	username := fl.Field().String()

	if len(username) < 3 || len(username) > 20 {
		return false
	}

	// 只能包含字母、数字和下划线
	return usernamePattern.MatchString(username)
}

// validateISBN ISBN验证
func validateISBN(fl validator.FieldLevel) bool {
	isbn := fl.Field().String()

	if isbn == "" {
		return true // 允许为空，是否必填由 required 决定
	}

	return models.ValidISBN(isbn)
}

// validateImageURL 封面地址验证
func validateImageURL(fl validator.FieldLevel) bool {
	url := fl.Field().String()
	if url == "" {
		return true
	}
	return models.ValidImageURL(url)
}

// validatePersonName 姓名验证
func validatePersonName(fl validator.FieldLevel) bool {
	return personNamePattern.MatchString(fl.Field().String())
}

// validatePubYear 出版年份验证
func validatePubYear(fl validator.FieldLevel) bool {
	return models.ValidYearOfPub(int(fl.Field().Int()))
}

// BindAndValidate 绑定并验证请求
func BindAndValidate(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return err
	}
	return nil
}

var (
	scriptPattern  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
)

// SanitizeString 清理字符串（防止XSS）
func SanitizeString(input string) string {
	// 先移除JavaScript代码，再移除其余HTML标签
	cleaned := scriptPattern.ReplaceAllString(input, "")
	cleaned = htmlTagPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}
