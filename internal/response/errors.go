package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Routing ───────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Attempt sessions ──────────────────────────────────────────────
	ErrSessionNotFound    ErrCode = "SESSION_NOT_FOUND"
	ErrAttemptLocked      ErrCode = "ATTEMPT_LOCKED"
	ErrAttemptSuspended   ErrCode = "ATTEMPT_SUSPENDED"
	ErrNotInProgress      ErrCode = "ATTEMPT_NOT_IN_PROGRESS"
	ErrFinalizeInProgress ErrCode = "FINALIZE_IN_PROGRESS"
	ErrCameraRequired     ErrCode = "CAMERA_REQUIRED"
	ErrSessionLost        ErrCode = "SESSION_LOST"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Se requiere un token de autenticación."
	case ErrTokenInvalid:
		return "El token de autenticación no es válido."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Este recurso es solo para estudiantes."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "La validación falló. Revisa los datos enviados."
	case ErrInvalidID:
		return "Formato de ID inválido."
	case ErrInvalidPayload:
		return "El contenido de la solicitud no es válido."
	case ErrUnknownAction:
		return "Acción desconocida."

	// ─── Routing ───────────────────────────────────────────────────────
	case ErrNotFound:
		return "Recurso no encontrado."

	// ─── Attempt sessions ──────────────────────────────────────────────
	case ErrSessionNotFound:
		return "No hay una rendición activa para este intento."
	case ErrAttemptLocked:
		return "Este intento ya está abierto en otra ventana o dispositivo."
	case ErrAttemptSuspended:
		return "Intento suspendido."
	case ErrNotInProgress:
		return "El intento no está en curso."
	case ErrFinalizeInProgress:
		return "La entrega ya está en curso."
	case ErrCameraRequired:
		return "Debes activar la cámara para finalizar."
	case ErrSessionLost:
		return "La sesión se abrió en otro lugar."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Demasiadas solicitudes. Intenta nuevamente más tarde."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Ocurrió un error interno del servidor."
	default:
		return "Ocurrió un error inesperado."
	}
}

// IsRetryable reports whether the same request may succeed if sent again
// later without changes.
func IsRetryable(code ErrCode) bool {
	switch code {
	case ErrAttemptLocked, ErrFinalizeInProgress, ErrRateLimitExceeded, ErrInternal:
		return true
	default:
		return false
	}
}
