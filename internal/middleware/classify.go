package middleware

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/avtodeleer/gooddrive/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
)

// pqErrorTable はPostgreSQLのSQLSTATEから分類済みエラーへの対応表。
// 表にないコードはDATABASE_ERRORとして扱う。
var pqErrorTable = map[pq.ErrorCode]func(*pq.Error) *model.APIError{
	"23505": func(e *pq.Error) *model.APIError {
		return model.NewConflictError("Duplicate entry", map[string]string{"field": constraintField(e)})
	},
	"23503": func(e *pq.Error) *model.APIError {
		return &model.APIError{
			Kind:    model.KindValidation,
			Code:    model.ErrCodeForeignKey,
			Message: "Foreign key constraint failed",
			Details: map[string]string{"field": constraintField(e)},
		}
	},
	"23502": func(e *pq.Error) *model.APIError {
		return &model.APIError{
			Kind:    model.KindValidation,
			Code:    model.ErrCodeRequiredField,
			Message: "Required field missing",
			Details: map[string]string{"field": e.Column},
		}
	},
}

// constraintField は制約違反の対象を表す名前を返す。
func constraintField(e *pq.Error) string {
	if e.Constraint != "" {
		return e.Constraint
	}
	return e.Column
}

// Classifier は任意のエラーをAPIErrorに分類する。
type Classifier struct {
	production bool
	logger     *slog.Logger
}

// NewClassifier はClassifierを生成する。
// productionがtrueの場合、内部エラーの詳細をレスポンスに含めない。
func NewClassifier(production bool, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{production: production, logger: logger}
}

// Production は本番設定かどうかを返す。
func (c *Classifier) Production() bool {
	return c.production
}

// Classify はエラーを分類する。nilにはnilを返す。
func (c *Classifier) Classify(err error) *model.APIError {
	if err == nil {
		return nil
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, repository.ErrNotFound) {
		return model.NewNotFoundError("Record", "").WithCause(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if build, ok := pqErrorTable[pqErr.Code]; ok {
			return build(pqErr).WithCause(err)
		}
		c.logger.Error("unhandled database error",
			slog.String("sqlstate", string(pqErr.Code)),
			slog.String("error", pqErr.Message),
		)
		dbErr := &model.APIError{
			Kind:    model.KindInternal,
			Code:    model.ErrCodeDatabase,
			Message: "Database error",
		}
		if !c.production {
			dbErr.Details = map[string]string{
				"sqlstate": string(pqErr.Code),
				"message":  pqErr.Message,
				"detail":   pqErr.Detail,
				"table":    pqErr.Table,
			}
		}
		return dbErr.WithCause(err)
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return model.NewValidationError("Validation failed", fieldIssues(validationErrs)).WithCause(err)
	}

	c.logger.Error("unclassified error", slog.String("error", err.Error()))
	internal := model.NewInternalError(nil)
	if !c.production {
		internal.Details = err.Error()
	}
	return internal.WithCause(err)
}

// fieldIssues はバリデーションエラーを項目単位の詳細に変換する。
func fieldIssues(errs validator.ValidationErrors) []model.FieldIssue {
	issues := make([]model.FieldIssue, 0, len(errs))
	for _, fe := range errs {
		issues = append(issues, model.FieldIssue{
			Path:    fieldPath(fe),
			Message: fieldMessage(fe),
		})
	}
	return issues
}

// fieldPath は先頭の構造体名を除いたフィールドパスを返す。
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return "Required"
	case "email":
		return "Invalid email"
	case "min":
		return fmt.Sprintf("Must be at least %s%s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("Must be at most %s%s", fe.Param(), unit)
	case "url":
		return "Invalid URL"
	default:
		return fmt.Sprintf("Failed on the '%s' rule", fe.Tag())
	}
}
