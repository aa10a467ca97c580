package i18n

// Catalog of user-visible messages. Format verbs are documented inline where used.
var (
	Welcome = Text{
		EN: "👋 *Welcome, %s!*\n\nI track your expenses and income. Try:\n• \"create account\"\n• \"paid 50 for coffee\"\n• \"what's my balance?\"",
		AR: "👋 *أهلاً بك، %s!*\n\nأساعدك في تتبع مصروفاتك ودخلك. جرّب:\n• \"إنشاء حساب\"\n• \"دفعت 50 على قهوة\"\n• \"كم رصيدي؟\"",
	}
	Help = Text{
		EN: "ℹ️ *What I can do*\n\n• Log expenses: \"spent 120 on groceries\"\n• Log income: \"received 5000 salary\"\n• Balance: \"my balance\"\n• Accounts: \"create account\", \"my accounts\", \"set Cash as default\"\n• History: \"how much did I spend on food this month?\"\n• /cancel to stop the current step",
		AR: "ℹ️ *ما يمكنني فعله*\n\n• تسجيل مصروف: \"صرفت 120 على البقالة\"\n• تسجيل دخل: \"استلمت 5000 راتب\"\n• الرصيد: \"رصيدي\"\n• الحسابات: \"إنشاء حساب\"، \"حساباتي\"، \"اجعل نقد افتراضي\"\n• السجل: \"كم صرفت على الطعام هذا الشهر؟\"\n• /cancel لإيقاف الخطوة الحالية",
	}
	Cancelled = Text{
		EN: "👌 Cancelled. What would you like to do next?",
		AR: "👌 تم الإلغاء. ماذا تريد أن تفعل الآن؟",
	}
	NothingToCancel = Text{
		EN: "There is nothing to cancel.",
		AR: "لا يوجد شيء لإلغائه.",
	}

	// Account creation wizard.
	AskAccountType = Text{
		EN: "🏦 *Create New Account*\n\nWhat type of account?\n• bank\n• cash\n• credit",
		AR: "🏦 *إنشاء حساب جديد*\n\nما نوع الحساب؟\n• بنك\n• نقد\n• ائتمان",
	}
	InvalidAccountType = Text{
		EN: "❌ Invalid account type. Please choose: bank, cash, or credit",
		AR: "❌ نوع حساب غير صالح. يرجى الاختيار: بنك، نقد، أو ائتمان",
	}
	AskAccountName = Text{
		EN: "✏️ What should we call this account? (e.g., \"Main Bank\")",
		AR: "✏️ ما اسم هذا الحساب؟ (مثال: \"البنك الرئيسي\")",
	}
	InvalidAccountName = Text{
		EN: "❌ Account name must be between 1 and 50 characters.",
		AR: "❌ يجب أن يكون اسم الحساب بين 1 و 50 حرفاً.",
	}
	AskInitialBalance = Text{
		EN: "💰 What is the current balance? (e.g., 5000)",
		AR: "💰 ما هو الرصيد الحالي؟ (مثال: 5000)",
	}
	InvalidBalance = Text{
		EN: "❌ Invalid balance. Please enter a number (e.g., 5000)",
		AR: "❌ رصيد غير صالح. يرجى إدخال رقم (مثال: 5000)",
	}
	NegativeBalance = Text{
		EN: "❌ Initial balance cannot be negative for bank or cash accounts",
		AR: "❌ لا يمكن أن يكون الرصيد الابتدائي سالباً لحسابات البنك أو النقد",
	}
	// %[1]s emoji, %[2]s name, %[3]s type, %[4]s balance, %[5]s currency
	AccountCreated = Text{
		EN: "✅ *Account Created Successfully!*\n\n%[1]s *%[2]s*\nType: %[3]s\nBalance: %[4]s %[5]s\nCurrency: %[5]s\n\nYour account is ready to use! 🎉",
		AR: "✅ *تم إنشاء الحساب بنجاح!*\n\n%[1]s *%[2]s*\nالنوع: %[3]s\nالرصيد: %[4]s %[5]s\nالعملة: %[5]s\n\nحسابك جاهز للاستخدام! 🎉",
	}
	WizardRestart = Text{
		EN: "⚠️ Something went wrong while creating your account. Please start again with \"create account\".",
		AR: "⚠️ حدث خطأ أثناء إنشاء حسابك. يرجى البدء من جديد بكتابة \"إنشاء حساب\".",
	}

	// Accounts and balances.
	NoAccounts = Text{
		EN: "📭 You don't have any accounts yet. Send \"create account\" to add one.",
		AR: "📭 ليس لديك حسابات بعد. أرسل \"إنشاء حساب\" لإضافة حساب.",
	}
	CreateAccountFirst = Text{
		EN: "Please create an account first using 'create account'",
		AR: "يرجى إنشاء حساب أولاً باستخدام 'إنشاء حساب'",
	}
	AccountsHeader = Text{
		EN: "📋 *Your Accounts*\n\n",
		AR: "📋 *حساباتك*\n\n",
	}
	BalanceHeader = Text{
		EN: "💰 *Your Balance*\n\n",
		AR: "💰 *رصيدك*\n\n",
	}
	// %s amount, %s currency
	TotalBalance = Text{
		EN: "\n💰 *Total Balance:* %s %s",
		AR: "\n💰 *الرصيد الإجمالي:* %s %s",
	}
	DefaultMarker = Text{
		EN: " ⭐ default",
		AR: " ⭐ افتراضي",
	}
	// %s account name
	DefaultAccountSet = Text{
		EN: "⭐ *%s* is now your default account.",
		AR: "⭐ أصبح *%s* حسابك الافتراضي.",
	}
	// %s account name
	AccountNotFound = Text{
		EN: "❓ I couldn't find an account named \"%s\".",
		AR: "❓ لم أجد حساباً باسم \"%s\".",
	}

	// Transactions.
	// %[1]s amount, %[2]s currency, %[3]s description, %[4]s category, %[5]s account, %[6]s date
	ConfirmExpense = Text{
		EN: "💸 *Confirm Expense*\n\nAmount: %[1]s %[2]s\nDescription: %[3]s\nCategory: %[4]s\nAccount: %[5]s\nDate: %[6]s\n\nIs this correct?",
		AR: "💸 *تأكيد المصروف*\n\nالمبلغ: %[1]s %[2]s\nالوصف: %[3]s\nالفئة: %[4]s\nالحساب: %[5]s\nالتاريخ: %[6]s\n\nهل هذا صحيح؟",
	}
	ConfirmIncome = Text{
		EN: "💰 *Confirm Income*\n\nAmount: %[1]s %[2]s\nDescription: %[3]s\nCategory: %[4]s\nAccount: %[5]s\nDate: %[6]s\n\nIs this correct?",
		AR: "💰 *تأكيد الدخل*\n\nالمبلغ: %[1]s %[2]s\nالوصف: %[3]s\nالفئة: %[4]s\nالحساب: %[5]s\nالتاريخ: %[6]s\n\nهل هذا صحيح؟",
	}
	UnsureNote = Text{
		EN: "\n\n_I'm not fully sure I got this right, please check the details._",
		AR: "\n\n_لست متأكداً تماماً، يرجى مراجعة التفاصيل._",
	}
	ConfirmButton = Text{EN: "✅ Confirm", AR: "✅ تأكيد"}
	CancelButton  = Text{EN: "❌ Cancel", AR: "❌ إلغاء"}
	// %[1]s amount, %[2]s currency, %[3]s description, %[4]s account, %[5]s new balance
	ExpenseLogged = Text{
		EN: "✅ *Logged!*\n\n💸 Expense: %[1]s %[2]s\n📝 %[3]s\n🏦 %[4]s\n\nNew balance: %[5]s %[2]s",
		AR: "✅ *تم التسجيل!*\n\n💸 مصروف: %[1]s %[2]s\n📝 %[3]s\n🏦 %[4]s\n\nالرصيد الجديد: %[5]s %[2]s",
	}
	IncomeLogged = Text{
		EN: "✅ *Logged!*\n\n💰 Income: %[1]s %[2]s\n📝 %[3]s\n🏦 %[4]s\n\nNew balance: %[5]s %[2]s",
		AR: "✅ *تم التسجيل!*\n\n💰 دخل: %[1]s %[2]s\n📝 %[3]s\n🏦 %[4]s\n\nالرصيد الجديد: %[5]s %[2]s",
	}
	TransactionCancelled = Text{
		EN: "❌ Transaction cancelled",
		AR: "❌ تم إلغاء المعاملة",
	}
	TransactionExpired = Text{
		EN: "⏰ This transaction has expired. Please try again.",
		AR: "⏰ انتهت صلاحية هذه المعاملة. يرجى المحاولة مرة أخرى.",
	}
	AlreadyProcessed = Text{
		EN: "✔️ This transaction was already processed.",
		AR: "✔️ تمت معالجة هذه المعاملة بالفعل.",
	}
	NotYourAction = Text{
		EN: "This action is not for you",
		AR: "هذا الإجراء ليس لك",
	}
	TransactionFailed = Text{
		EN: "❌ Failed to log the transaction. Please try again.",
		AR: "❌ فشل تسجيل المعاملة. يرجى المحاولة مرة أخرى.",
	}
	MissingTransactionDetails = Text{
		EN: "🤔 Sorry, I couldn't get the amount and description. Try something like \"spent 50 on coffee\".",
		AR: "🤔 عذراً، لم أتمكن من معرفة المبلغ والوصف. جرّب مثلاً \"صرفت 50 على قهوة\".",
	}
	PendingExists = Text{
		EN: "⏳ You have a transaction waiting for confirmation. Please confirm or cancel it first.",
		AR: "⏳ لديك معاملة بانتظار التأكيد. يرجى تأكيدها أو إلغاؤها أولاً.",
	}

	// Clarification and search.
	DefaultClarification = Text{
		EN: "🤔 I'm not sure I understood. Could you rephrase? For example: \"spent 50 on coffee\".",
		AR: "🤔 لست متأكداً أنني فهمت. هل يمكنك إعادة الصياغة؟ مثال: \"صرفت 50 على قهوة\".",
	}
	// %s comma separated fields
	MissingFields = Text{
		EN: "\n\nMissing: %s",
		AR: "\n\nناقص: %s",
	}
	SearchNoResults = Text{
		EN: "🔍 No matching transactions found.",
		AR: "🔍 لا توجد معاملات مطابقة.",
	}
	SearchHeader = Text{
		EN: "🔍 *Transactions*\n\n",
		AR: "🔍 *المعاملات*\n\n",
	}
	// %s total, %s currency, %d count
	SearchSum = Text{
		EN: "🧮 *Total:* %s %s (%d transactions)",
		AR: "🧮 *الإجمالي:* %s %s (%d معاملة)",
	}
	SearchCount = Text{
		EN: "🧮 *Count:* %d transactions",
		AR: "🧮 *العدد:* %d معاملة",
	}
	SearchAverage = Text{
		EN: "🧮 *Average:* %s %s over %d transactions",
		AR: "🧮 *المتوسط:* %s %s على %d معاملة",
	}
	// %d shown, %d total
	SearchMore = Text{
		EN: "\n…showing %d of %d",
		AR: "\n…عرض %d من %d",
	}

	// Service failures.
	RateLimited = Text{
		EN: "Too many requests. Please try again in a moment.",
		AR: "طلبات كثيرة جداً. يرجى المحاولة مرة أخرى بعد قليل.",
	}
	ServerUnavailable = Text{
		EN: "AI service is temporarily unavailable. Please try again later.",
		AR: "خدمة الذكاء الاصطناعي غير متاحة مؤقتاً. يرجى المحاولة لاحقاً.",
	}
	ClientRejected = Text{
		EN: "Failed to process your request. Please try rephrasing your message.",
		AR: "فشل في معالجة طلبك. يرجى إعادة صياغة رسالتك.",
	}
	Timeout = Text{
		EN: "AI service is taking too long to respond. Please try again.",
		AR: "خدمة الذكاء الاصطناعي تستغرق وقتاً طويلاً للرد. يرجى المحاولة مرة أخرى.",
	}
	NetworkError = Text{
		EN: "Unable to connect to AI service. Please check your connection.",
		AR: "غير قادر على الاتصال بخدمة الذكاء الاصطناعي. يرجى التحقق من اتصالك.",
	}
	InvalidResponse = Text{
		EN: "Failed to understand AI response. Please try again.",
		AR: "فشل في فهم استجابة الذكاء الاصطناعي. يرجى المحاولة مرة أخرى.",
	}
	RetriesExhausted = Text{
		EN: "AI service is currently unavailable. Please try again later.",
		AR: "خدمة الذكاء الاصطناعي غير متاحة حالياً. يرجى المحاولة لاحقاً.",
	}
	SlowDown = Text{
		EN: "🐢 You're sending messages quickly. Please wait a minute and try again.",
		AR: "🐢 أنت ترسل الرسائل بسرعة. يرجى الانتظار دقيقة والمحاولة مرة أخرى.",
	}

	// Domain error codes.
	NotFound = Text{
		EN: "❓ The requested record was not found.",
		AR: "❓ لم يتم العثور على السجل المطلوب.",
	}
	Forbidden = Text{
		EN: "🔒 You don't have access to that.",
		AR: "🔒 ليس لديك صلاحية الوصول إلى ذلك.",
	}
	InvalidInput = Text{
		EN: "❌ That input isn't valid. Please check and try again.",
		AR: "❌ المدخل غير صالح. يرجى التحقق والمحاولة مرة أخرى.",
	}
	Conflict = Text{
		EN: "✔️ That was already done.",
		AR: "✔️ تم ذلك بالفعل.",
	}
	InternalError = Text{
		EN: "⚠️ Something went wrong on our side. Please try again later.",
		AR: "⚠️ حدث خطأ من جانبنا. يرجى المحاولة لاحقاً.",
	}
)

// AccountTypeNames maps account types to localised names.
var AccountTypeNames = map[string]Text{
	"bank":   {EN: "Bank", AR: "بنك"},
	"cash":   {EN: "Cash", AR: "نقد"},
	"credit": {EN: "Credit", AR: "ائتمان"},
}
