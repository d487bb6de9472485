package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 业务指标，在 InitMetrics 中注册一次。
var (
	UserRegisteredTotal prometheus.Counter
	UserVerifiedTotal   prometheus.Counter
	LoginSuccessTotal   prometheus.Counter
	LoginFailureTotal   prometheus.Counter
	OtpIssuedTotal      prometheus.Counter
	TodoCreatedTotal    prometheus.Counter
	EmailSentTotal      prometheus.Counter
	EmailFailedTotal    prometheus.Counter
	EmailRetriedTotal   prometheus.Counter
)

var initOnce sync.Once

// InitMetrics 注册 Prometheus 指标。
//
// 可重复调用，只注册一次（测试里多个用例都会触发初始化）。
func InitMetrics() {
	initOnce.Do(func() {
		UserRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todonest_user_registered_total",
			Help: "Total number of registered users.",
		})
		UserVerifiedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todonest_user_verified_total",
			Help: "Total number of successful email verifications.",
		})
		LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todonest_login_success_total",
			Help: "Total number of successful logins.",
		})
		LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todonest_login_failure_total",
			Help: "Total number of failed logins.",
		})
		OtpIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todonest_otp_issued_total",
			Help: "Total number of one-time passcodes issued.",
		})
		TodoCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todonest_todo_created_total",
			Help: "Total number of todos created.",
		})
		EmailSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todonest_email_sent_total",
			Help: "Total number of notification emails delivered.",
		})
		EmailFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todonest_email_failed_total",
			Help: "Total number of notification emails that failed to deliver.",
		})
		EmailRetriedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todonest_email_retried_total",
			Help: "Total number of notification emails requeued for retry.",
		})

		prometheus.MustRegister(
			UserRegisteredTotal,
			UserVerifiedTotal,
			LoginSuccessTotal,
			LoginFailureTotal,
			OtpIssuedTotal,
			TodoCreatedTotal,
			EmailSentTotal,
			EmailFailedTotal,
			EmailRetriedTotal,
		)
	})
}
