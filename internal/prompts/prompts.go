// Package prompts holds the prompt templates for operator suggestion and
// conversation analysis. Both instruct the model to answer in strict JSON.
package prompts

import "fmt"

const suggestionTemplate = `あなたはコールセンターのAIアシスタントです。オペレーターが適切に顧客対応できるよう支援してください。

## 会話履歴:
%s

## 現在の文脈:
%s

## 顧客情報:
%s

## タスク:
以下のJSON形式で応答してください：

{
  "suggestions": [
    "適切な応答例1（自然で丁寧な日本語）",
    "適切な応答例2（状況に応じた代替案）",
    "適切な応答例3（必要に応じて）"
  ],
  "relevantInfo": [
    {
      "title": "関連情報のタイトル",
      "content": "具体的な情報内容",
      "category": "product|support|policy"
    }
  ],
  "alerts": [
    "注意すべきポイントがあれば記載"
  ],
  "confidence": 0.85
}

## 応答ガイドライン:
1. 自然で丁寧な敬語を使用
2. 顧客の感情に配慮した表現
3. 具体的で実用的な内容
4. 企業の品格を保った対応
5. 必要に応じてエスカレーションを提案

JSON形式のみで応答してください。説明文は不要です。
`

// Suggestions builds the operator suggestion prompt. customerInfo is
// pre-rendered; empty means no customer information is available.
func Suggestions(conversationHistory, currentContext, customerInfo string) string {
	if customerInfo == "" {
		customerInfo = "情報なし"
	}
	return fmt.Sprintf(suggestionTemplate, conversationHistory, currentContext, customerInfo)
}

const analysisTemplate = `会話を分析して以下の情報を抽出してください：

会話内容:
%s

JSON形式で応答してください：
{
  "sentiment": "positive|neutral|negative",
  "topics": ["話題1", "話題2"],
  "urgency": "low|medium|high",
  "summary": "会話の要約"
}
`

// Analysis builds the conversation analysis prompt.
func Analysis(conversationHistory string) string {
	return fmt.Sprintf(analysisTemplate, conversationHistory)
}
