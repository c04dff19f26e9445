package nutrition

// Prompt is sent verbatim with every image.
const Prompt = `You are a food expert. Identify the food item in this image and provide estimated nutritional information.

Respond in this strict JSON format only:
{
    "food": "name",
    "calories": number,
    "carbs": number,
    "protein": number,
    "fat": number,
    "fiber": number,
    "sugar": number
}`
