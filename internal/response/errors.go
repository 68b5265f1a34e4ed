package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrRateLimited    ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrNoActiveExam       ErrCode = "NO_ACTIVE_EXAM"
	ErrSessionBusy        ErrCode = "SESSION_BUSY"
	ErrInvalidState       ErrCode = "INVALID_STATE"
	ErrExamLoadFailed     ErrCode = "EXAM_LOAD_FAILED"
	ErrSessionStartFailed ErrCode = "SESSION_START_FAILED"
	ErrSubmitFailed       ErrCode = "SUBMIT_FAILED"
	ErrSubmitCancelled    ErrCode = "SUBMIT_CANCELLED"
	ErrConfirmPending     ErrCode = "CONFIRM_PENDING"
	ErrRequestCancelled   ErrCode = "REQUEST_CANCELLED"
	ErrShellDisconnected  ErrCode = "SHELL_DISCONNECTED"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidAnswer      ErrCode = "INVALID_ANSWER"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrBackendRejected    ErrCode = "BACKEND_REJECTED"
	ErrBackendUnavailable ErrCode = "BACKEND_UNAVAILABLE"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrRateLimited:
		return "Terlalu banyak permintaan. Silakan tunggu sebentar."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrNoActiveExam:
		return "Belum ada ujian yang dibuka."
	case ErrSessionBusy:
		return "Ujian lain sedang berlangsung di perangkat ini."
	case ErrInvalidState:
		return "Tindakan ini tidak dapat dilakukan pada status ujian saat ini."
	case ErrExamLoadFailed:
		return "Gagal memuat ujian."
	case ErrSessionStartFailed:
		return "Tidak bisa memulai sesi ujian."
	case ErrSubmitFailed:
		return "Gagal menyimpan jawaban. Silakan coba kirim ulang."
	case ErrSubmitCancelled:
		return "Pengiriman ujian dibatalkan."
	case ErrConfirmPending:
		return "Konfirmasi pengiriman sedang ditampilkan."
	case ErrRequestCancelled:
		return "Permintaan dibatalkan sebelum selesai."
	case ErrShellDisconnected:
		return "Tampilan ujian tidak terhubung."
	case ErrUnknownQuestion:
		return "Soal tidak ditemukan pada ujian ini."
	case ErrInvalidAnswer:
		return "Jawaban tidak sesuai dengan jenis soal."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrBackendRejected:
		return "Permintaan ditolak oleh server sekolah."
	case ErrBackendUnavailable:
		return "Server sekolah tidak dapat dihubungi."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
